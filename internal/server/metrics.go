package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by logical endpoint rather than raw path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New so tests can inject a fresh
// prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// askRequestsTotal counts completed POST /api/ requests by outcome
	// (ok, bad_input, no_context, timeout, error).
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records end-to-end question latency by outcome.
	askDurationSeconds *prometheus.HistogramVec

	// askInFlight is the number of questions currently being answered.
	askInFlight prometheus.Gauge

	// httpRequestsTotal counts routed HTTP requests by method, handler, and code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of routed HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tdsqa",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of questions handled, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tdsqa",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "End-to-end latency of questions, partitioned by outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),

		askInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tdsqa",
			Subsystem: "ask",
			Name:      "in_flight",
			Help:      "Number of questions currently being answered.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tdsqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tdsqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
