// Package metrics provides the Prometheus registry reference for the
// fetcher. All metrics are defined in their respective packages
// (client, pagination, pacing, checkpoint) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the fetcher.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - atlas_requests_total{endpoint, status} (Counter): Requests by endpoint path and HTTP status
//   - atlas_request_duration_seconds{endpoint} (Histogram): Request duration including retries
//   - atlas_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - atlas_retries_total{error_class} (Counter): Retry attempts by error class
//   - atlas_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - atlas_retry_exhausted_total{error_class} (Counter): Bounded-policy runs that spent their attempts
//
// Pagination Metrics (pkg/pagination):
//   - atlas_pages_fetched_total (Counter): Pages fetched across runs
//   - atlas_records_emitted_total (Counter): Records handed to sinks
//   - atlas_runs_total{outcome} (Counter): Runs by terminal outcome
//   - atlas_early_stops_total (Counter): Runs halted by the minimum-ID threshold
//
// Pacing Metrics (pkg/pacing):
//   - atlas_page_pauses_total (Counter): Courtesy pauses between pages
//   - atlas_page_pause_seconds (Histogram): Pause durations
//
// Checkpoint Metrics (pkg/checkpoint):
//   - atlas_checkpoint_ops_total{operation} (Counter): Save/load/clear operations
//   - atlas_checkpoint_errors_total{operation} (Counter): Failed operations
//
// Example Prometheus Queries:
//
//   # Retry Rate
//   rate(atlas_retries_total[5m]) / rate(atlas_requests_total[5m])
//
//   # Records Per Second
//   rate(atlas_records_emitted_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(atlas_request_duration_seconds_bucket[5m]))
//
//   # Abort Rate
//   rate(atlas_runs_total{outcome="aborted"}[1h])
