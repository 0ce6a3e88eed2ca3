// Package metrics holds the Prometheus collectors of the leaderboard service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_cache_hits_total",
		Help: "Cache hits by key namespace",
	}, []string{"namespace"})
	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_cache_misses_total",
		Help: "Cache misses by key namespace",
	}, []string{"namespace"})
	CacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_cache_errors_total",
		Help: "Cache store failures by operation",
	}, []string{"op"})
	ComputeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leaderboard_compute_duration_seconds",
		Help:    "Time to compute a leaderboard result on cache miss",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope", "kind"})
	UpstreamErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_upstream_errors_total",
		Help: "Skills service failures by type",
	}, []string{"type"})
	EnrichmentFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leaderboard_enrichment_failures_total",
		Help: "Global leaderboard batches dropped because an entry failed to resolve",
	})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"route", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leaderboard_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		CacheHits,
		CacheMisses,
		CacheErrors,
		ComputeDuration,
		UpstreamErrors,
		EnrichmentFailures,
		HTTPRequests,
		HTTPDuration,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
