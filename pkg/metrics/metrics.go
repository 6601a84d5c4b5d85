// Package metrics provides the centralized Prometheus registry reference for
// the export client. Metrics are defined in their owning packages (client,
// export, ratelimit) to keep modularity and avoid circular dependencies.
//
// This package documents all available metrics in one place.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the export client.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - zendesk_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status
//   - zendesk_request_duration_seconds{endpoint} (Histogram): request duration by endpoint
//
// Retry Metrics (pkg/client):
//   - zendesk_retries_total{outcome} (Counter): retry attempts by outcome (transient, rate_limited, network)
//   - zendesk_retry_backoff_seconds (Histogram): backoff durations before retries
//   - zendesk_retry_exhausted_total (Counter): requests that exhausted the retry limit
//   - zendesk_rate_limit_waits_total (Counter): Retry-After waits honored
//
// Rate Limit Metrics (pkg/ratelimit):
//   - zendesk_rate_limit_remaining (Gauge): remaining requests in the current per-minute window
//   - zendesk_rate_limit_throttles_total (Counter): requests throttled due to a low budget
//
// Export Metrics (pkg/export):
//   - zendesk_records_exported_total{target} (Counter): records delivered to the consumer
//   - zendesk_dedup_skips_total{target} (Counter): records skipped as duplicates
//   - zendesk_pages_fetched_total{target} (Counter): pages fetched
//
// Example Prometheus Queries:
//
//   # Records per second by target
//   rate(zendesk_records_exported_total[5m])
//
//   # Duplicate ratio
//   rate(zendesk_dedup_skips_total[5m]) / rate(zendesk_records_exported_total[5m])
//
//   # Rate limit pressure
//   zendesk_rate_limit_remaining < 10
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(zendesk_request_duration_seconds_bucket[5m]))
