// Package metrics provides the Prometheus registry used by travel-map and the
// end-of-run textfile export. All metrics are defined in their respective
// packages (client, ratelimit, pagination, status) and registered via promauto.
//
// A run is a short-lived batch job, so nothing is served over HTTP. Instead
// the gathered metrics can be written to a file for the node_exporter
// textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by travel-map.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes the current value of every registered metric to path
// in the Prometheus text exposition format. Parent directories are created.
func WriteTextfile(path string) error {
	return WriteTextfileFrom(Gatherer, path)
}

// WriteTextfileFrom writes the metrics gathered by g to path.
func WriteTextfileFrom(g prometheus.Gatherer, path string) error {
	if path == "" {
		return fmt.Errorf("metrics textfile path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}

	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - travelmap_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status ("network_error" for transport failures)
//   - travelmap_request_duration_seconds{endpoint} (Histogram): Attempt duration by endpoint
//   - travelmap_errors_total{class} (Counter): Failed attempts by class (network, rate_limit, fatal_status)
//
// Retry Metrics (pkg/client):
//   - travelmap_retries_total{error_class} (Counter): Retries by error class
//   - travelmap_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - travelmap_retry_exhausted_total{error_class} (Counter): Requests that used up all network attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - travelmap_rate_limited_total (Counter): 429 responses waited out
//   - travelmap_rate_limit_wait_seconds_total (Counter): Seconds spent honouring Retry-After
//   - travelmap_rate_limit_last_retry_after_seconds (Gauge): Most recent Retry-After value
//   - travelmap_pacing_waits_total (Counter): Requests delayed by proactive pacing
//
// Traversal Metrics (pkg/pagination):
//   - travelmap_pages_fetched_total{endpoint} (Counter): Listing pages fetched
//   - travelmap_batches_fetched_total (Counter): Geometry chunks fetched
//
// Filter Metrics (pkg/status):
//   - travelmap_statuses_filtered_total{reason} (Counter): Filter verdicts by reason
//   - travelmap_filter_unexpected_total{field} (Counter): Unexpected visibility/category values
//
// Example Prometheus Queries:
//
//   # Share of statuses kept in the last run
//   travelmap_statuses_filtered_total{reason="kept"} / ignoring(reason) sum(travelmap_statuses_filtered_total)
//
//   # Time lost to rate limiting
//   travelmap_rate_limit_wait_seconds_total
//
//   # P95 attempt latency
//   histogram_quantile(0.95, rate(travelmap_request_duration_seconds_bucket[5m]))
