package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/docling-console/internal/bootstrap"
	"github.com/kirillkom/docling-console/internal/config"
	"github.com/kirillkom/docling-console/internal/observability/logging"
)

const serviceName = "tracker"

// tracker follows task ids published by consoles to their terminal state and
// republishes every transition as a task event.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	if cfg.NATSURL == "" {
		slog.Error("config_invalid", "error", "tracker requires NATS_URL")
		os.Exit(1)
	}
	// A tracker always publishes what it observes.
	cfg.PublishTaskEvents = true
	cfg.QueueSubmissions = false

	logger := logging.NewLogger(os.Stdout, serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", app.MetricsHandler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.TrackerMetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("tracker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("tracker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("tracker_subscribed", "subject", cfg.NATSSubmissions)
	err = app.Queue.SubscribeTaskSubmitted(ctx, func(handlerCtx context.Context, taskID string) error {
		return app.Tracker.Track(handlerCtx, taskID)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tracker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
