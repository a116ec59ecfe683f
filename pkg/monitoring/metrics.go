package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts total requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	// RequestDuration measures request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	// UpstreamRequestsTotal counts upstream HTTP calls by path and status ("error" for transport failures).
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"path", "status"},
	)

	// UpstreamRequestDuration measures one upstream HTTP call.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream API request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"path"},
	)

	// UpstreamRetriesTotal counts backoff sleeps before a retry.
	UpstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Total number of upstream request retries",
		},
		[]string{"path", "status"},
	)

	// UpstreamLoginsTotal counts upstream login attempts.
	UpstreamLoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_logins_total",
			Help: "Total number of upstream login attempts",
		},
		[]string{"result"},
	)

	// CacheLookupsTotal counts response cache lookups.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"cache", "result"},
	)

	// MetricFetchesTotal counts dashboard metric fetches by the source that served them.
	MetricFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_metric_fetches_total",
			Help: "Dashboard metric fetches by source (live, stale, default)",
		},
		[]string{"metric", "source"},
	)
)
