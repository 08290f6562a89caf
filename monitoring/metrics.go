// Package monitoring provides metrics and observability for the feed refresh agent
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Refresh submission metrics
	refreshSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_submissions_total",
			Help: "Total number of feed refresh submissions",
		},
		[]string{"mode", "status"},
	)

	// Status poll metrics
	statusPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_status_polls_total",
			Help: "Total number of batched refresh status polls",
		},
		[]string{"status"},
	)

	statusPollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refresh_status_poll_duration_seconds",
			Help:    "Duration of batched refresh status polls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	jobsSettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_jobs_settled_total",
			Help: "Total number of refresh jobs that reached a terminal state",
		},
		[]string{"result"},
	)

	pendingJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "refresh_pending_jobs",
			Help: "Number of refresh jobs currently pending",
		},
	)

	listRefetchTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refresh_feed_list_refetch_total",
			Help: "Total number of post-completion feed list refetches",
		},
	)

	// Cache metrics
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_cache_hits_total",
			Help: "Total number of feed list cache hits",
		},
		[]string{"operation"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_cache_misses_total",
			Help: "Total number of feed list cache misses",
		},
		[]string{"operation"},
	)

	// Upstream API metrics
	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of requests sent to the feed backend",
		},
		[]string{"method", "endpoint", "status"},
	)

	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of requests sent to the feed backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// Agent HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_http_requests_total",
			Help: "Total number of HTTP requests handled by the agent",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_http_request_duration_seconds",
			Help:    "Duration of HTTP requests handled by the agent",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

// RecordSubmission records a refresh submission attempt
func RecordSubmission(mode, status string) {
	refreshSubmissionsTotal.WithLabelValues(mode, status).Inc()
}

// RecordStatusPoll records one batched status poll
func RecordStatusPoll(status string, duration float64) {
	statusPollsTotal.WithLabelValues(status).Inc()
	statusPollDuration.WithLabelValues(status).Observe(duration)
}

// RecordJobSettled records a job reaching a terminal state
func RecordJobSettled(result string) {
	jobsSettledTotal.WithLabelValues(result).Inc()
}

// UpdatePendingJobs updates the pending jobs gauge
func UpdatePendingJobs(count int) {
	pendingJobs.Set(float64(count))
}

// RecordListRefetch records a post-completion feed list refetch
func RecordListRefetch() {
	listRefetchTotal.Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit(operation string) {
	cacheHits.WithLabelValues(operation).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(operation string) {
	cacheMisses.WithLabelValues(operation).Inc()
}

// RecordUpstreamRequest records a request to the feed backend
func RecordUpstreamRequest(method, endpoint, status string, duration float64) {
	upstreamRequests.WithLabelValues(method, endpoint, status).Inc()
	upstreamRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration)
}

// RecordHTTPRequest records agent HTTP request metrics
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration)
}
