package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docling-console/internal/config"
	"github.com/kirillkom/docling-console/internal/core/domain"
)

func backendStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/v1/documents/process":
			_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "t-1", "status": "PENDING"})
		case strings.HasPrefix(r.URL.Path, "/api/v1/documents/task/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "SUCCESS",
				"result": map[string]any{"chunks_processed": 3, "document_id": "d-1"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, backendURL string) config.Config {
	cfg := config.Defaults()
	cfg.BackendURL = backendURL
	cfg.PollInterval = time.Millisecond
	cfg.JournalDriver = "bolt"
	cfg.BoltPath = filepath.Join(t.TempDir(), "tasks.db")
	return cfg
}

func TestNewWiresBoltJournalAndTracker(t *testing.T) {
	srv := backendStub(t)
	app, err := New(context.Background(), testConfig(t, srv.URL), "test", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Queue != nil {
		t.Fatal("queue must stay nil without a NATS url")
	}
	if app.Journal == nil {
		t.Fatal("expected a bolt journal")
	}

	outcome, err := app.Ingest.Watch(context.Background(), "t-1", nil)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if outcome.State != domain.PollerSucceeded {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	record, err := app.Journal.GetTask(context.Background(), "t-1")
	if err != nil || record.DocumentID != "d-1" {
		t.Fatalf("journal record %+v err=%v", record, err)
	}

	rec := httptest.NewRecorder()
	app.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "docling_backend_requests_total") {
		t.Fatal("expected backend metrics in exposition")
	}
}

func TestNewWithoutJournal(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.JournalDriver = "none"

	app, err := New(context.Background(), cfg, "test", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()
	if app.Journal != nil {
		t.Fatal("expected no journal")
	}
}
