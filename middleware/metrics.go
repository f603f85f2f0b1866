package middleware

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/lakequeue/job"
)

// meterName is the instrumentation scope name for lakequeue metrics.
const meterName = "github.com/xraph/lakequeue"

// Metrics returns middleware that records per-job execution metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - lakequeue.job.duration (Float64Histogram): body run time in seconds
//   - lakequeue.job.executions (Int64Counter): total body runs
//
// Both carry lakequeue.queue_type and lakequeue.outcome (see [Outcome]).
// Group ids are left off since they are unbounded.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"lakequeue.job.duration",
		metric.WithDescription("Duration of job body execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"lakequeue.job.executions",
		metric.WithDescription("Total number of job body executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		attrs := metric.WithAttributes(
			attribute.String("lakequeue.queue_type", strconv.Itoa(int(j.QueueType))),
			attribute.String("lakequeue.outcome", Outcome(ctx, err)),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
