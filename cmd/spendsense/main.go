package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"spendsense/internal/backend"
	"spendsense/internal/cli"
	apphttp "spendsense/internal/http"
	"spendsense/internal/middleware/ratelimit"
	"spendsense/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, "server")

	ctx, stop := cli.SignalContext()
	defer stop()

	factory := backend.NewFactory(slog.Default())
	bcfg := cli.BackendConfig(cfg)

	stores, err := factory.CreateStore(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []services.Option{
		services.WithMetrics(services.NewPrometheusMetrics(reg)),
		services.WithLocation(cfg.TimeLocation()),
	}

	// Events are best effort: the ledger keeps working without a broker.
	events, err := factory.CreateEvents(bcfg)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
	} else if events != nil {
		opts = append(opts, services.WithPublisher(events))
	}

	svc := services.NewLedgerService(stores.Store, opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close ledger service", "error", err)
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Logger:   logger,
		Registry: reg,
		Ready:    stores.Store.Ping,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting spendsense server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events_enabled", events != nil,
			"location", cfg.TimeLocation().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err, ok := <-errCh:
		if ok {
			logger.Error("Server error", "error", err, "port", cfg.Port)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped gracefully")
}
