// Package metrics exposes the Prometheus registry for star-sweep.
// All metrics are defined in their respective packages (planner, fetcher,
// retry, github, cache, ratelimit) to maintain modularity and avoid circular
// dependencies.
//
// This package provides the HTTP surface and a reference for all available metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by star-sweep.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Names lists every metric star-sweep exports.
var Names = []string{
	"stars_planner_probes_total",
	"stars_planner_intervals_total",
	"stars_planner_skipped_scores_total",
	"stars_fetch_items_total",
	"stars_intervals_stitched_total",
	"stars_coverage_gaps_total",
	"stars_fetch_duplicates_dropped_total",
	"stars_retries_total",
	"stars_retry_backoff_seconds",
	"stars_github_requests_total",
	"stars_github_request_duration_seconds",
	"stars_github_errors_total",
	"stars_ratelimit_remaining",
	"stars_ratelimit_exhausted_total",
	"stars_cache_hits_total",
	"stars_cache_misses_total",
	"stars_cache_stores_total",
	"stars_cache_errors_total",
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewMux returns a mux serving /metrics and, when health is non-nil, /health.
func NewMux(health http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	if health != nil {
		mux.HandleFunc("/health", health)
	}
	return mux
}

// HealthHandler answers OK while check returns nil and 503 otherwise.
func HealthHandler(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "unhealthy: %v", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// Metrics Documentation
//
// Planner Metrics (pkg/planner):
//   - stars_planner_probes_total{phase} (Counter): Count probes by resulting phase
//   - stars_planner_intervals_total (Counter): Committed plan intervals
//   - stars_planner_skipped_scores_total (Counter): Unsplittable scores skipped
//
// Fetch Metrics (pkg/fetcher):
//   - stars_fetch_items_total{order} (Counter): Items collected per window order
//   - stars_intervals_stitched_total (Counter): Intervals needing the descending window
//   - stars_coverage_gaps_total (Counter): Intervals with more than two windows of matches
//   - stars_fetch_duplicates_dropped_total (Counter): Overlap items dropped by dedup
//
// Retry Metrics (pkg/retry):
//   - stars_retries_total{error_class} (Counter): Retry attempts by error class
//   - stars_retry_backoff_seconds{error_class} (Histogram): Wait before each retry
//
// Request Metrics (pkg/github):
//   - stars_github_requests_total{kind, status} (Counter): Search requests by kind (count, list) and HTTP status
//   - stars_github_request_duration_seconds{kind} (Histogram): Request duration by kind
//   - stars_github_errors_total{class} (Counter): Errors by class (rate_limit, transient)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - stars_ratelimit_remaining (Gauge): Search quota left in the current window
//   - stars_ratelimit_exhausted_total (Counter): Responses reporting an exhausted quota
//
// Cache Metrics (pkg/cache):
//   - stars_cache_hits_total{layer} (Counter): Count cache hits by layer (memory, redis)
//   - stars_cache_misses_total (Counter): Probes sent upstream
//   - stars_cache_stores_total{layer} (Counter): Counts stored
//   - stars_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Count Cache Hit Rate
//   sum(rate(stars_cache_hits_total[5m])) /
//   (sum(rate(stars_cache_hits_total[5m])) + sum(rate(stars_cache_misses_total[5m])))
//
//   # Time Spent Waiting On Rate Limits
//   sum(rate(stars_retry_backoff_seconds_sum{error_class="rate_limit"}[15m]))
//
//   # Probes Per Committed Interval
//   sum(stars_planner_probes_total) / stars_planner_intervals_total
//
//   # P95 Search Latency
//   histogram_quantile(0.95, rate(stars_github_request_duration_seconds_bucket[5m]))
