// Package metrics provides the centralized Prometheus metrics registry for
// the ingestion engine. All metrics are defined in their respective packages
// (client, ratelimit, cache, paginate, store, session) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the engine.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Pacing Metrics (pkg/ratelimit):
//   - ingest_pace_delay_seconds (Gauge): Current adaptive inter-request delay
//   - ingest_pace_cooldowns_total (Counter): Sleeps taken at the per-minute request ceiling
//   - ingest_pace_requests_total (Counter): Requests admitted through the governor
//
// Cache Metrics (pkg/cache):
//   - ingest_cache_hits_total{layer="redis"} (Counter): Page cache hits by layer
//   - ingest_cache_misses_total (Counter): Page cache misses
//   - ingest_cache_size_bytes{layer="redis"} (Gauge): Current cache size in bytes
//   - ingest_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - ingest_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - ingest_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - ingest_errors_total{class} (Counter): Errors by class (rate_limit, upstream, decode, timeout, network)
//
// Retry and Recovery Metrics (pkg/client):
//   - ingest_retries_total{error_class} (Counter): Retry attempts by error class
//   - ingest_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - ingest_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//   - ingest_recovery_attempts_total (Counter): Extended outage recovery attempts
//   - ingest_recovery_exhausted_total (Counter): Requests abandoned after recovery gave up
//
// Pagination Metrics (pkg/paginate):
//   - ingest_pages_fetched_total{endpoint} (Counter): Pages fetched by endpoint
//   - ingest_records_collected_total{endpoint} (Counter): Unique records collected by endpoint
//
// Persistence Metrics (pkg/store):
//   - ingest_records_written_total{endpoint} (Counter): Record files written by endpoint
//   - ingest_records_skipped_total{endpoint} (Counter): Records skipped on write failures
//
// Session Metrics (pkg/session):
//   - ingest_endpoints_processed_total{outcome} (Counter): Endpoints processed by outcome
//   - ingest_session_duration_seconds (Histogram): Wall clock duration of sessions
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(ingest_cache_hits_total[5m])) /
//   (sum(rate(ingest_cache_hits_total[5m])) + sum(rate(ingest_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(ingest_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(ingest_request_duration_seconds_bucket[5m]))
//
//   # Records Written per Second
//   sum(rate(ingest_records_written_total[5m]))
