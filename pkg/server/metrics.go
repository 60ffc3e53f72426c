package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "munindb_queries_total",
		Help: "Queries served, by type and outcome.",
	}, []string{"type", "outcome"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "munindb_query_duration_seconds",
		Help:    "Query latency, by type.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"type"})
)

// queryKind maps a query endpoint path to its metric label, or "" for
// non-query paths.
func queryKind(path string) string {
	rest, ok := strings.CutPrefix(path, "/query/")
	if !ok || rest == "" {
		return ""
	}
	return strings.ReplaceAll(rest, "-", "_")
}

// observeRequest records one query request from its response status.
func observeRequest(kind string, elapsed time.Duration, status int) {
	outcome := "ok"
	if status >= http.StatusBadRequest {
		outcome = "error"
	}
	queriesTotal.WithLabelValues(kind, outcome).Inc()
	queryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
