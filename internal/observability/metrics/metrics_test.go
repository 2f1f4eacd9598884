package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/tasks":              "/v1/tasks",
		"/v1/tasks/abc-123":      "/v1/tasks/{task_id}",
		"/v1/tasks/abc-1/revoke": "/v1/tasks/{task_id}/revoke",
		"/v1/search":             "/v1/search",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiddlewareCountsByNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("console")
	handler := m.Middleware("console", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, id := range []string{"a", "b"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/tasks/"+id, nil))
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("console", http.MethodGet, "/v1/tasks/{task_id}", "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
}

func TestClientMetricsPollObservations(t *testing.T) {
	m := NewClientMetrics("tracker")

	m.ObservePollTick(domain.TaskStarted, nil)
	m.ObservePollTick("", errors.New("boom"))
	m.ObservePollTick("", domain.ErrPollingAborted)
	m.ObservePollFinished(domain.PollerSucceeded, 3)

	if got := testutil.ToFloat64(m.pollTicksTotal.WithLabelValues("tracker", "STARTED")); got != 1 {
		t.Fatalf("STARTED ticks = %v", got)
	}
	if got := testutil.ToFloat64(m.pollTicksTotal.WithLabelValues("tracker", "error")); got != 1 {
		t.Fatalf("error ticks = %v", got)
	}
	if got := testutil.ToFloat64(m.pollTicksTotal.WithLabelValues("tracker", "aborted")); got != 1 {
		t.Fatalf("aborted ticks = %v", got)
	}
	if got := testutil.ToFloat64(m.pollFinishedTotal.WithLabelValues("tracker", "succeeded")); got != 1 {
		t.Fatalf("finished = %v", got)
	}
}

func TestClientMetricsBackendAndBreaker(t *testing.T) {
	m := NewClientMetrics("docctl")

	m.ObserveBackendRequest("search_documents", "ok", 20*time.Millisecond)
	m.ObserveBreakerState("docling.search_documents", gobreaker.StateClosed, gobreaker.StateOpen)

	if got := testutil.ToFloat64(m.backendRequestsTotal.WithLabelValues("docctl", "search_documents", "ok")); got != 1 {
		t.Fatalf("requests = %v", got)
	}
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("docctl", "docling.search_documents")); got != float64(gobreaker.StateOpen) {
		t.Fatalf("breaker gauge = %v", got)
	}
}

func TestClientMetricsUnorderedSearchResults(t *testing.T) {
	m := NewClientMetrics("console")

	m.ObserveUnorderedResults()
	m.ObserveUnorderedResults()

	if got := testutil.ToFloat64(m.searchUnordered); got != 2 {
		t.Fatalf("unordered results = %v", got)
	}
}

func TestSharedRegistryServesBothSets(t *testing.T) {
	registry := prometheus.NewRegistry()
	client := NewClientMetricsWithRegistry("console", registry)
	server := NewHTTPServerMetricsWithRegistry("console", registry)

	client.PollerStarted()
	server.RecordSubmission("console", nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{"docling_poller_active", "docling_console_submissions_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in exposition", name)
		}
	}
}
