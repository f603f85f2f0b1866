// Package observability provides lifecycle metrics for lakequeue.
//
// MetricsExtension records system-wide OpenTelemetry counters for enqueue,
// deduplication, leases, outcomes, lost leases, discarded messages and
// cron fires. CounterExtension keeps the same totals in a go-utils
// MetricFactory for processes that export nothing.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
