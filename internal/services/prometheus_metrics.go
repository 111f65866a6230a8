package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names understood by PrometheusMetrics.
const (
	MetricLedgerOperation = "ledger.operation"
	MetricEventPublished  = "events.published"
	MetricEventProcessed  = "worker.event.processed"
	MetricGroupsTotal     = "ledger.groups"
	MetricSplitDropped    = "split.dropped_share"
)

type PrometheusMetrics struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	eventsPublished    *prometheus.CounterVec
	eventsProcessed    *prometheus.CounterVec
	groupsTotal        prometheus.Gauge
	splitDroppedShares prometheus.Counter
}

// NewPrometheusMetrics registers the service metrics with reg.
// A nil reg creates unregistered collectors, which tests rely on.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spendsense_ledger_operations_total",
				Help: "Total number of ledger operations by outcome",
			},
			[]string{"operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spendsense_ledger_operation_duration_milliseconds",
				Help:    "Ledger operation duration in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"operation"},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spendsense_events_published_total",
				Help: "Total number of ledger events handed to the publisher",
			},
			[]string{"type", "status"},
		),
		eventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spendsense_worker_events_processed_total",
				Help: "Total number of ledger events processed by the worker",
			},
			[]string{"type", "status"},
		),
		groupsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "spendsense_groups",
				Help: "Number of groups in the ledger after the last write",
			},
		),
		splitDroppedShares: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "spendsense_split_dropped_shares_total",
				Help: "Participants dropped from custom splits because of invalid shares",
			},
		),
	}
}

func (m *PrometheusMetrics) IncrementCounter(name string, tags map[string]string) {
	status := tags["status"]
	switch name {
	case MetricLedgerOperation:
		m.operationsTotal.WithLabelValues(tags["operation"], status).Inc()
	case MetricEventPublished:
		m.eventsPublished.WithLabelValues(tags["type"], status).Inc()
	case MetricEventProcessed:
		m.eventsProcessed.WithLabelValues(tags["type"], status).Inc()
	case MetricSplitDropped:
		m.splitDroppedShares.Inc()
	}
}

func (m *PrometheusMetrics) RecordProcessingTime(name string, duration time.Duration) {
	m.operationDuration.WithLabelValues(name).Observe(float64(duration.Milliseconds()))
}

func (m *PrometheusMetrics) RecordGauge(name string, value float64, tags map[string]string) {
	switch name {
	case MetricGroupsTotal:
		m.groupsTotal.Set(value)
	}
}
