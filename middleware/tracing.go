package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/lakequeue/job"
)

// tracerName is the instrumentation scope name for lakequeue tracing.
const tracerName = "github.com/xraph/lakequeue"

// Tracing returns middleware that wraps job execution in an OpenTelemetry
// span named "lakequeue.job.execute". Without a global TracerProvider the
// noop tracer makes this a pass-through.
//
// Span attributes: lakequeue.job.id, lakequeue.queue_type,
// lakequeue.group_id, lakequeue.job.version, and lakequeue.outcome once the
// body returns.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "lakequeue.job.execute",
			trace.WithAttributes(
				attribute.Int64("lakequeue.job.id", j.ID),
				attribute.Int("lakequeue.queue_type", int(j.QueueType)),
				attribute.Int64("lakequeue.group_id", j.GroupID),
				attribute.Int64("lakequeue.job.version", j.Version),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		span.SetAttributes(attribute.String("lakequeue.outcome", Outcome(ctx, err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
