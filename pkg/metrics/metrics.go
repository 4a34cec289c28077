// Package metrics provides the centralized Prometheus registry for the
// catalog proxy. All metrics are defined in their respective packages
// (upstream, cache, aggregator, api, ratelimit, coalesce) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the catalog proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Upstream Metrics (pkg/upstream):
//   - catalog_upstream_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - catalog_upstream_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - catalog_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - catalog_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - catalog_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - catalog_upstream_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total{store} (Counter): Cache hits by store
//   - catalog_cache_misses_total (Counter): Cache misses
//   - catalog_cache_size_bytes{store} (Gauge): Current cache size in bytes
//   - catalog_cache_errors_total{operation} (Counter): Cache operation errors
//   - catalog_cache_corrupt_entries_total (Counter): Entries dropped because they failed to decode
//   - catalog_cache_namespace_bumps_total{namespace} (Counter): Namespace version bumps
//
// Listing Metrics (pkg/aggregator):
//   - catalog_listings_total{outcome} (Counter): Listings by cache outcome (hit, miss, error)
//   - catalog_merge_pages_fetched (Histogram): Upstream pages fetched per merge-all listing
//   - catalog_merge_cap_reached_total (Counter): Merge-all fetches truncated by the item cap
//   - catalog_empty_success_total (Counter): Listings resolving to zero presentable products
//
// HTTP Metrics (pkg/api):
//   - catalog_http_requests_total{route, status} (Counter): Requests by route and status code
//   - catalog_http_request_duration_seconds{route} (Histogram): Request duration by route
//   - catalog_http_not_modified_total (Counter): 304 responses via ETag match
//
// Rate Limit Metrics (pkg/ratelimit):
//   - catalog_ratelimit_blocked_total (Counter): Requests rejected by the limiter
//   - catalog_ratelimit_active_clients (Gauge): Client windows currently tracked
//
// Coalescer Metrics (pkg/coalesce):
//   - catalog_coalesce_fetches_total{outcome} (Counter): Fetches by outcome (fresh, coalesced, refreshed, stale, failed)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(catalog_cache_hits_total[5m])) /
//   (sum(rate(catalog_cache_hits_total[5m])) + sum(rate(catalog_cache_misses_total[5m])))
//
//   # Upstream Error Rate
//   rate(catalog_upstream_errors_total[5m])
//
//   # P95 Listing Latency
//   histogram_quantile(0.95, rate(catalog_http_request_duration_seconds_bucket[5m]))
//
//   # 304 Response Rate
//   rate(catalog_http_not_modified_total[5m]) / rate(catalog_http_requests_total[5m])
//
//   # Merge Fan-out
//   histogram_quantile(0.95, rate(catalog_merge_pages_fetched_bucket[5m]))
