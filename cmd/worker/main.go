package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/app"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/gatehouse/pkg/config"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
)

const statsInterval = time.Minute

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.DefaultLogConfig()).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat))
	logger.Info("starting gatehouse worker")

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	metrics := observability.NewInMemoryMetrics()
	container, err := app.NewContainer(ctx, cfg, logger, app.WithMetrics(metrics))
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	processor := container.OutboxProcessor
	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start outbox processor", "error", err)
		os.Exit(1)
	}

	cleanup, err := outbox.NewCleanupScheduler(cfg.OutboxCleanupSchedule, processor, cfg.OutboxRetention(), container.Metrics, logger)
	if err != nil {
		logger.Error("failed to schedule outbox cleanup", "error", err)
		os.Exit(1)
	}
	cleanup.Start()
	defer cleanup.Stop()
	logger.Info("outbox cleanup scheduled",
		"schedule", cfg.OutboxCleanupSchedule,
		"retention_days", cfg.OutboxRetentionDays,
	)

	if cfg.WorkerHealthAddr != "" {
		go serveHealth(ctx, cfg.WorkerHealthAddr, container, metrics, logger)
	}

	statsTicker := time.NewTicker(statsInterval)
	defer statsTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		case <-statsTicker.C:
			stats := processor.GetStats()
			logger.Info("outbox stats",
				"running", stats.IsRunning,
				"published", stats.PublishedCount,
				"failed", stats.FailedCount,
				"dead", stats.DeadCount,
			)
		}
	}
}

func serveHealth(ctx context.Context, addr string, container *app.Container, metrics *observability.InMemoryMetrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := container.OutboxProcessor.GetStats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"running":   stats.IsRunning,
			"published": stats.PublishedCount,
			"failed":    stats.FailedCount,
			"dead":      stats.DeadCount,
			"metrics":   metrics.Snapshot(),
		})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		health := container.Health.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if health.Status == observability.HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("health server error", "error", err)
	}
}
