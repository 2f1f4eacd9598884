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
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/docling-console/internal/adapters/http"
	"github.com/kirillkom/docling-console/internal/bootstrap"
	"github.com/kirillkom/docling-console/internal/config"
	"github.com/kirillkom/docling-console/internal/observability/logging"
	"github.com/kirillkom/docling-console/internal/observability/metrics"
)

const serviceName = "console"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
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

	httpMetrics := metrics.NewHTTPServerMetricsWithRegistry(serviceName, app.Registry)
	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Submitter: app.Ingest,
		Tasks:     app.Tracker,
		History:   app.Journal,
		Chunks:    app.Chunks,
		Search:    app.Search,
		Health:    app.Gateway,
		Metrics:   httpMetrics,
		Logger:    logger,
	})

	apiServer := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", app.MetricsHandler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("api_listening", "addr", apiServer.Addr, "backend_url", cfg.BackendURL)
		return listen(apiServer)
	})
	group.Go(func() error {
		logger.Info("metrics_listening", "addr", metricsServer.Addr)
		return listen(metricsServer)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	if err := group.Wait(); err != nil {
		logger.Error("console_stopped", "error", err)
		os.Exit(1)
	}
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
