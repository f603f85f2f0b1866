package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/lakequeue/ext"
	"github.com/xraph/lakequeue/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*MetricsExtension)(nil)
	_ ext.JobEnqueued      = (*MetricsExtension)(nil)
	_ ext.JobDequeued      = (*MetricsExtension)(nil)
	_ ext.JobCompleted     = (*MetricsExtension)(nil)
	_ ext.JobFailed        = (*MetricsExtension)(nil)
	_ ext.JobCancelled     = (*MetricsExtension)(nil)
	_ ext.LeaseLost        = (*MetricsExtension)(nil)
	_ ext.MessageDiscarded = (*MetricsExtension)(nil)
	_ ext.JobDeclined      = (*MetricsExtension)(nil)
	_ ext.CronFired        = (*MetricsExtension)(nil)
)

// meterName is the instrumentation scope used by NewMetricsExtension.
const meterName = "github.com/xraph/lakequeue/observability"

// MetricsExtension records job lifecycle counters through OpenTelemetry.
// Register it with an ext.Registry to track enqueue and deduplication
// rates, leases, outcomes, lost leases and discarded messages. Every
// data point carries a queue_type attribute.
type MetricsExtension struct {
	JobEnqueued     metric.Int64Counter
	JobDeduplicated metric.Int64Counter
	JobDequeued     metric.Int64Counter
	JobCompleted    metric.Int64Counter
	JobFailed       metric.Int64Counter
	JobCancelled    metric.Int64Counter
	LeaseLost       metric.Int64Counter
	Discarded       metric.Int64Counter
	Declined        metric.Int64Counter
	CronFired       metric.Int64Counter
	JobDuration     metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to noop instruments.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	duration, _ := meter.Float64Histogram("lakequeue.job.lifetime",
		metric.WithDescription("Time from first lease to completion in seconds"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		JobEnqueued:     counter("lakequeue.job.enqueued", "Job records created by Enqueue"),
		JobDeduplicated: counter("lakequeue.job.deduplicated", "Enqueued definitions that matched an existing job"),
		JobDequeued:     counter("lakequeue.job.dequeued", "Leases granted"),
		JobCompleted:    counter("lakequeue.job.completed", "Jobs completed successfully"),
		JobFailed:       counter("lakequeue.job.failed", "Jobs completed as failed"),
		JobCancelled:    counter("lakequeue.job.cancelled", "Jobs cancelled"),
		LeaseLost:       counter("lakequeue.job.lease_lost", "Leases lost to another worker"),
		Discarded:       counter("lakequeue.job.discarded", "Dispatch messages discarded on receipt"),
		Declined:        counter("lakequeue.job.declined", "Leased jobs declined by the job factory"),
		CronFired:       counter("lakequeue.cron.fired", "Cron entries fired"),
		JobDuration:     duration,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func queueAttr(qt job.QueueType) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("queue_type", strconv.Itoa(int(qt))))
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job, created bool) error {
	if created {
		m.JobEnqueued.Add(ctx, 1, queueAttr(j.QueueType))
	} else {
		m.JobDeduplicated.Add(ctx, 1, queueAttr(j.QueueType))
	}
	return nil
}

// OnJobDequeued implements ext.JobDequeued.
func (m *MetricsExtension) OnJobDequeued(ctx context.Context, j *job.Job, _ string) error {
	m.JobDequeued.Add(ctx, 1, queueAttr(j.QueueType))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	m.JobCompleted.Add(ctx, 1, queueAttr(j.QueueType))
	m.JobDuration.Record(ctx, elapsed.Seconds(), queueAttr(j.QueueType))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, queueAttr(j.QueueType))
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	m.JobCancelled.Add(ctx, 1, queueAttr(j.QueueType))
	return nil
}

// OnLeaseLost implements ext.LeaseLost.
func (m *MetricsExtension) OnLeaseLost(ctx context.Context, j *job.Job, _ error) error {
	m.LeaseLost.Add(ctx, 1, queueAttr(j.QueueType))
	return nil
}

// OnMessageDiscarded implements ext.MessageDiscarded.
func (m *MetricsExtension) OnMessageDiscarded(ctx context.Context, qt job.QueueType, _, reason string) error {
	m.Discarded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue_type", strconv.Itoa(int(qt))),
		attribute.String("reason", reason),
	))
	return nil
}

// OnJobDeclined implements ext.JobDeclined.
func (m *MetricsExtension) OnJobDeclined(ctx context.Context, j *job.Job) error {
	m.Declined.Add(ctx, 1, queueAttr(j.QueueType))
	return nil
}

// ── Cron lifecycle hooks ────────────────────────────

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(ctx context.Context, entry string, _ []*job.Job) error {
	m.CronFired.Add(ctx, 1, metric.WithAttributes(attribute.String("entry", entry)))
	return nil
}
