package services

import (
	"context"
	"time"

	"spendsense/internal/amqp"
)

// Publisher announces ledger changes to other processes.
// *amqp.Client satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, event amqp.LedgerEvent) error
}

// MetricsRecorder records service metrics by name.
type MetricsRecorder interface {
	IncrementCounter(name string, tags map[string]string)
	RecordProcessingTime(name string, duration time.Duration)
	RecordGauge(name string, value float64, tags map[string]string)
}

type noopMetrics struct{}

func (noopMetrics) IncrementCounter(string, map[string]string)    {}
func (noopMetrics) RecordProcessingTime(string, time.Duration)    {}
func (noopMetrics) RecordGauge(string, float64, map[string]string) {}
