// Package metrics exposes Prometheus instrumentation for the API
// server and the snapshot worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tricount_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "pattern", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tricount_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "pattern"})

	rateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tricount_rate_limit_hits_total",
		Help: "Requests rejected by the per-client rate limiter.",
	})

	mutationsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tricount_group_mutations_published_total",
		Help: "Group mutation messages published to the broker.",
	})

	snapshotsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tricount_balance_snapshots_written_total",
		Help: "Balance snapshot writes by trigger (message or reconcile).",
	}, []string{"trigger"})
)

// ObserveRequest records one completed HTTP request.
func ObserveRequest(method, pattern string, status int, duration time.Duration) {
	requestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method, pattern).Observe(duration.Seconds())
}

// RateLimitHit records a rejected request.
func RateLimitHit() { rateLimitHits.Inc() }

// MutationPublished records a published group mutation message.
func MutationPublished() { mutationsPublished.Inc() }

// SnapshotWritten records a balance snapshot write. Trigger is
// "message" for broker-driven writes and "reconcile" for the periodic
// pass.
func SnapshotWritten(trigger string) {
	snapshotsWritten.WithLabelValues(trigger).Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
