package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kirillkom/docling-console/internal/config"
	"github.com/kirillkom/docling-console/internal/core/domain"
	"github.com/kirillkom/docling-console/internal/core/ports"
	"github.com/kirillkom/docling-console/internal/observability/metrics"
)

const serviceName = "console"

// TaskHistory is the read side of the task journal.
type TaskHistory interface {
	ListRecent(ctx context.Context, limit int) ([]domain.TaskRecord, error)
}

// HealthChecker probes the backend for /healthz?deep=1.
type HealthChecker interface {
	Health(ctx context.Context) (domain.BackendHealth, error)
}

type Services struct {
	Submitter ports.DocumentSubmitter
	Tasks     ports.TaskTracking
	History   TaskHistory
	Chunks    ports.ChunkLister
	Search    ports.DocumentSearcher
	Health    HealthChecker
	Metrics   *metrics.HTTPServerMetrics
	Logger    *slog.Logger
}

type Router struct {
	cfg      config.Config
	svc      Services
	logger   *slog.Logger
	validate *validator.Validate
}

func NewRouter(cfg config.Config, svc Services) *Router {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = config.Defaults().MaxUploadBytes
	}
	if cfg.ChunkPageSize <= 0 {
		cfg.ChunkPageSize = config.Defaults().ChunkPageSize
	}
	return &Router{
		cfg:      cfg,
		svc:      svc,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/ingest", rt.ingestUpload)
	mux.HandleFunc("POST /v1/ingest/path", rt.ingestPath)
	mux.HandleFunc("GET /v1/tasks", rt.listTasks)
	mux.HandleFunc("GET /v1/tasks/{task_id}", rt.getTask)
	mux.HandleFunc("DELETE /v1/tasks/{task_id}", rt.stopTask)
	mux.HandleFunc("POST /v1/tasks/{task_id}/revoke", rt.revokeTask)
	mux.HandleFunc("GET /v1/chunks", rt.listChunks)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("POST /v1/search", rt.search)

	var handler http.Handler = mux
	if rt.svc.Metrics != nil {
		handler = rt.svc.Metrics.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(handler, 64, 2*time.Second)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "" || rt.svc.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	health, err := rt.svc.Health.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "backend_error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "backend": health})
}

// validationFailure turns validator output into a field -> tag map.
func (rt *Router) validationFailure(w http.ResponseWriter, err error) {
	fields := make(map[string]string)
	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range errs {
			fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fields})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.ValidationError("invalid json: " + strings.TrimSpace(err.Error()))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
