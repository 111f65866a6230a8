package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"spendsense/internal/backend"
	"spendsense/internal/cache"
	"spendsense/internal/cli"
	"spendsense/internal/services"
	"spendsense/internal/storage"
	"spendsense/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, "worker")

	logger.Info("Starting spendsense-worker")

	ctx, stop := cli.SignalContext()
	defer stop()

	factory := backend.NewFactory(logger.Logger)
	bcfg := cli.BackendConfig(cfg)

	if bcfg.Type == backend.MemoryBackend {
		logger.Warn("Memory backend is private to this process, resync will empty the mirror")
	}

	stores, err := factory.CreateStore(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer stores.Cleanup()

	mirror, err := factory.CreateMirror(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize mirror", "error", err)
		os.Exit(1)
	}

	if c, ok := mirror.(cache.Cleaner); ok {
		caches := cache.NewManager()
		caches.Register(c)
		caches.StartCleanup(5 * time.Minute)
		defer caches.Stop()
	}

	events, err := factory.CreateEvents(bcfg)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	if events != nil {
		defer events.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	w := worker.NewMirrorWorker(storage.NewLedger(stores.Store), mirror, services.NewPrometheusMetrics(reg))

	// On startup, push the whole ledger so rows missed while down are restored
	logger.Info("Performing startup resync...")
	if err := w.Resync(ctx); err != nil {
		logger.Error("Failed startup resync", "error", err)
		// Don't exit - continue with normal operation
	}

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Serving worker metrics", "port", cfg.WorkerMetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if events != nil {
		g.Go(func() error {
			err := events.ConsumeEvents(gctx, w.HandleEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping event consumption - AMQP not configured, relying on periodic resync")
	}

	// Periodic resync catches anything the event stream missed
	g.Go(func() error {
		ticker := time.NewTicker(cfg.ResyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := w.Resync(gctx); err != nil {
					logger.Error("Periodic resync failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
