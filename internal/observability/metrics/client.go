package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docling-console/internal/core/domain"
)

// ClientMetrics covers the backend-facing side of a process: gateway calls,
// breaker transitions and task polling.
type ClientMetrics struct {
	registry *prometheus.Registry
	service  string

	backendRequestsTotal *prometheus.CounterVec
	backendDuration      *prometheus.HistogramVec
	breakerState         *prometheus.GaugeVec
	pollTicksTotal       *prometheus.CounterVec
	pollFinishedTotal    *prometheus.CounterVec
	pollAttempts         *prometheus.HistogramVec
	pollersActive        prometheus.Gauge
	searchUnordered      prometheus.Counter
}

func NewClientMetrics(service string) *ClientMetrics {
	return NewClientMetricsWithRegistry(service, prometheus.NewRegistry())
}

// NewClientMetricsWithRegistry registers on an existing registry so one
// /metrics endpoint can serve both client and HTTP metrics.
func NewClientMetricsWithRegistry(service string, registry *prometheus.Registry) *ClientMetrics {
	backendRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docling",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total backend requests by operation and outcome.",
		},
		[]string{"service", "operation", "outcome"},
	)
	backendDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docling",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Backend request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docling",
			Subsystem: "backend",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)
	pollTicksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docling",
			Subsystem: "poller",
			Name:      "ticks_total",
			Help:      "Status queries issued by pollers, by reported status.",
		},
		[]string{"service", "status"},
	)
	pollFinishedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docling",
			Subsystem: "poller",
			Name:      "finished_total",
			Help:      "Pollers that reached a terminal state.",
		},
		[]string{"service", "state"},
	)
	pollAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docling",
			Subsystem: "poller",
			Name:      "attempts",
			Help:      "Status queries per finished poller.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 150, 300, 900},
		},
		[]string{"service", "state"},
	)
	pollersActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docling",
			Subsystem: "poller",
			Name:      "active",
			Help:      "Number of pollers currently tracking a task.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchUnordered := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docling",
			Subsystem: "search",
			Name:      "unordered_results_total",
			Help:      "Search responses whose results were not ascending by distance.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		backendRequestsTotal,
		backendDuration,
		breakerState,
		pollTicksTotal,
		pollFinishedTotal,
		pollAttempts,
		pollersActive,
		searchUnordered,
	)

	return &ClientMetrics{
		registry:             registry,
		service:              service,
		backendRequestsTotal: backendRequestsTotal,
		backendDuration:      backendDuration,
		breakerState:         breakerState,
		pollTicksTotal:       pollTicksTotal,
		pollFinishedTotal:    pollFinishedTotal,
		pollAttempts:         pollAttempts,
		pollersActive:        pollersActive,
		searchUnordered:      searchUnordered,
	}
}

func (m *ClientMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ClientMetrics) ObserveBackendRequest(operation, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.backendRequestsTotal.WithLabelValues(m.service, operation, outcome).Inc()
	m.backendDuration.WithLabelValues(m.service, operation).Observe(duration.Seconds())
}

func (m *ClientMetrics) ObserveBreakerState(operation string, _, to gobreaker.State) {
	m.breakerState.WithLabelValues(m.service, operation).Set(float64(to))
}

func (m *ClientMetrics) ObservePollTick(status domain.TaskStatus, err error) {
	label := string(status)
	switch {
	case errors.Is(err, domain.ErrPollingAborted):
		label = "aborted"
	case err != nil:
		label = "error"
	case label == "":
		label = "unknown"
	}
	m.pollTicksTotal.WithLabelValues(m.service, label).Inc()
}

func (m *ClientMetrics) ObservePollFinished(state domain.PollerState, attempts int) {
	m.pollFinishedTotal.WithLabelValues(m.service, string(state)).Inc()
	m.pollAttempts.WithLabelValues(m.service, string(state)).Observe(float64(attempts))
}

// PollerStarted and PollerStopped keep the active gauge; the tracker calls
// them around every poller it owns.
func (m *ClientMetrics) PollerStarted() {
	m.pollersActive.Inc()
}

func (m *ClientMetrics) PollerStopped() {
	m.pollersActive.Dec()
}

func (m *ClientMetrics) ObserveUnorderedResults() {
	m.searchUnordered.Inc()
}
