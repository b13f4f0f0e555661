// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by the logical endpoint name rather
// than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// matchRequestsTotal counts completed /api/match requests, partitioned
	// by outcome: "ok" or "error".
	matchRequestsTotal *prometheus.CounterVec

	// matchDurationSeconds records the wall-clock duration of each
	// /api/match request, encode and search included.
	matchDurationSeconds prometheus.Histogram

	// matchCaptionsTotal counts individual captions matched.
	matchCaptionsTotal prometheus.Counter

	// sessionsCreatedTotal counts review sessions opened.
	sessionsCreatedTotal prometheus.Counter

	// commitLabelsTotal counts labels persisted by review commits.
	commitLabelsTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		matchRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsnb",
			Subsystem: "match",
			Name:      "requests_total",
			Help:      "Total number of /api/match requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		matchDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fsnb",
			Subsystem: "match",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/match requests, encode and search included.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),

		matchCaptionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fsnb",
			Subsystem: "match",
			Name:      "captions_total",
			Help:      "Total number of captions matched.",
		}),

		sessionsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fsnb",
			Subsystem: "review",
			Name:      "sessions_created_total",
			Help:      "Total number of review sessions opened.",
		}),

		commitLabelsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fsnb",
			Subsystem: "review",
			Name:      "commit_labels_total",
			Help:      "Total number of labels persisted by review commits.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsnb",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fsnb",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
