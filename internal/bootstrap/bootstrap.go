package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docling-console/internal/config"
	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/ports"
	"github.com/kirillkom/docling-console/internal/core/usecase"
	"github.com/kirillkom/docling-console/internal/infrastructure/backend/docling"
	"github.com/kirillkom/docling-console/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docling-console/internal/infrastructure/repository/bolt"
	"github.com/kirillkom/docling-console/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docling-console/internal/infrastructure/resilience"
	"github.com/kirillkom/docling-console/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docling-console/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Gateway  *docling.Client
	Queue    *nats.Queue
	Journal  ports.TaskJournal
	Files    *localfs.Source
	Registry *prometheus.Registry
	Metrics  *metrics.ClientMetrics

	Tracker *usecase.TaskTracker
	Ingest  *usecase.IngestUseCase
	Chunks  *usecase.ChunkBrowser
	Search  *usecase.SearchOrchestrator

	closers []func()
}

// New wires one process. service names the process in logs and metrics.
func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Files:    localfs.New(cfg.StoragePath, cfg.MaxUploadBytes),
	}
	app.Metrics = metrics.NewClientMetricsWithRegistry(service, app.Registry)

	executor := resilience.NewExecutor(resilience.Config{
		Enabled:      cfg.BreakerEnabled,
		MinRequests:  uint32(max(cfg.BreakerMinRequests, 0)),
		FailureRatio: cfg.BreakerFailureRatio,
		OpenTimeout:  cfg.BreakerOpenTimeout,
		Interval:     resilience.DefaultConfig().Interval,
	}, logger).WithObserver(app.Metrics.ObserveBreakerState)

	app.Gateway = docling.New(cfg.BackendURL, docling.Options{
		Timeout:   cfg.BackendTimeout,
		RateLimit: cfg.BackendRateLimit,
		RateBurst: cfg.BackendRateBurst,
		UserAgent: "docling-console/" + service,
		Executor:  executor,
		Observer:  app.Metrics,
		Logger:    logger,
	})

	journal, err := app.openJournal(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Journal = journal

	if cfg.NATSURL != "" {
		queue, err := nats.New(cfg.NATSURL, nats.Options{
			Name:               "docling-" + service,
			SubmissionsSubject: cfg.NATSSubmissions,
			EventsSubject:      cfg.NATSEvents,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
	}

	var sinks []ports.TaskEventSink
	if cfg.PublishTaskEvents && app.Queue != nil {
		sinks = append(sinks, app.Queue)
	}
	app.Tracker = usecase.NewTaskTracker(app.Gateway, usecase.TrackerOptions{
		Poller: usecase.PollerConfig{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollMaxAttempts,
			Metrics:     app.Metrics,
			Logger:      logger,
		},
		Sinks:   sinks,
		Journal: app.Journal,
		Logger:  logger,
		Gauge:   app.Metrics,
	})
	app.closers = append(app.closers, app.Tracker.Close)

	var submissions ports.SubmissionQueue
	if cfg.QueueSubmissions && app.Queue != nil {
		submissions = app.Queue
	}
	app.Ingest = usecase.NewIngestUseCase(usecase.NewUploadCoordinator(app.Gateway, logger), app.Tracker, submissions, logger)
	app.Chunks = usecase.NewChunkBrowser(app.Gateway)
	app.Search = usecase.NewSearchOrchestrator(app.Gateway, domain.ResultLimitPolicy(cfg.SearchLimitPolicy), logger).WithMetrics(app.Metrics)

	return app, nil
}

func (a *App) openJournal(ctx context.Context) (ports.TaskJournal, error) {
	switch a.Config.JournalDriver {
	case "postgres":
		db, err := postgres.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, closeDB(db))
		journal := postgres.NewTaskJournal(db)
		if err := journal.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return journal, nil
	case "bolt":
		journal, err := bolt.Open(a.Config.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open task journal: %w", err)
		}
		a.closers = append(a.closers, func() { _ = journal.Close() })
		return journal, nil
	default:
		return nil, nil
	}
}

// MetricsHandler serves every collector registered by this process.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}
