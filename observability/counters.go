package observability

import (
	"context"
	"log/slog"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/lakequeue/ext"
	"github.com/xraph/lakequeue/job"
)

var (
	_ ext.Extension        = (*CounterExtension)(nil)
	_ ext.JobEnqueued      = (*CounterExtension)(nil)
	_ ext.JobDequeued      = (*CounterExtension)(nil)
	_ ext.JobCompleted     = (*CounterExtension)(nil)
	_ ext.JobFailed        = (*CounterExtension)(nil)
	_ ext.JobCancelled     = (*CounterExtension)(nil)
	_ ext.LeaseLost        = (*CounterExtension)(nil)
	_ ext.MessageDiscarded = (*CounterExtension)(nil)
	_ ext.CronFired        = (*CounterExtension)(nil)
)

// CounterExtension keeps process-lifetime totals of lifecycle events in a
// go-utils MetricFactory. Unlike MetricsExtension it needs no exporter,
// so a daemon can report its totals on shutdown.
type CounterExtension struct {
	JobEnqueued     gu.Counter
	JobDeduplicated gu.Counter
	JobDequeued     gu.Counter
	JobCompleted    gu.Counter
	JobFailed       gu.Counter
	JobCancelled    gu.Counter
	LeaseLost       gu.Counter
	Discarded       gu.Counter
	CronFired       gu.Counter
}

// NewCounterExtension creates a CounterExtension on its own collector.
func NewCounterExtension() *CounterExtension {
	return NewCounterExtensionWithFactory(gu.NewMetricsCollector("lakequeue/observability"))
}

// NewCounterExtensionWithFactory creates a CounterExtension whose counters
// live in factory.
func NewCounterExtensionWithFactory(factory gu.MetricFactory) *CounterExtension {
	return &CounterExtension{
		JobEnqueued:     factory.Counter("lakequeue.job.enqueued"),
		JobDeduplicated: factory.Counter("lakequeue.job.deduplicated"),
		JobDequeued:     factory.Counter("lakequeue.job.dequeued"),
		JobCompleted:    factory.Counter("lakequeue.job.completed"),
		JobFailed:       factory.Counter("lakequeue.job.failed"),
		JobCancelled:    factory.Counter("lakequeue.job.cancelled"),
		LeaseLost:       factory.Counter("lakequeue.job.lease_lost"),
		Discarded:       factory.Counter("lakequeue.job.discarded"),
		CronFired:       factory.Counter("lakequeue.cron.fired"),
	}
}

// Name implements ext.Extension.
func (c *CounterExtension) Name() string { return "observability-counters" }

// LogTotals writes the current totals as one log line.
func (c *CounterExtension) LogTotals(ctx context.Context, logger *slog.Logger) {
	logger.LogAttrs(ctx, slog.LevelInfo, "lifecycle totals",
		slog.Any("enqueued", c.JobEnqueued.Value()),
		slog.Any("deduplicated", c.JobDeduplicated.Value()),
		slog.Any("dequeued", c.JobDequeued.Value()),
		slog.Any("completed", c.JobCompleted.Value()),
		slog.Any("failed", c.JobFailed.Value()),
		slog.Any("cancelled", c.JobCancelled.Value()),
		slog.Any("lease_lost", c.LeaseLost.Value()),
		slog.Any("discarded", c.Discarded.Value()),
		slog.Any("cron_fired", c.CronFired.Value()),
	)
}

// OnJobEnqueued implements ext.JobEnqueued.
func (c *CounterExtension) OnJobEnqueued(_ context.Context, _ *job.Job, created bool) error {
	if created {
		c.JobEnqueued.Inc()
	} else {
		c.JobDeduplicated.Inc()
	}
	return nil
}

// OnJobDequeued implements ext.JobDequeued.
func (c *CounterExtension) OnJobDequeued(context.Context, *job.Job, string) error {
	c.JobDequeued.Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (c *CounterExtension) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	c.JobCompleted.Inc()
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (c *CounterExtension) OnJobFailed(context.Context, *job.Job, error) error {
	c.JobFailed.Inc()
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (c *CounterExtension) OnJobCancelled(context.Context, *job.Job) error {
	c.JobCancelled.Inc()
	return nil
}

// OnLeaseLost implements ext.LeaseLost.
func (c *CounterExtension) OnLeaseLost(context.Context, *job.Job, error) error {
	c.LeaseLost.Inc()
	return nil
}

// OnMessageDiscarded implements ext.MessageDiscarded.
func (c *CounterExtension) OnMessageDiscarded(context.Context, job.QueueType, string, string) error {
	c.Discarded.Inc()
	return nil
}

// OnCronFired implements ext.CronFired.
func (c *CounterExtension) OnCronFired(context.Context, string, []*job.Job) error {
	c.CronFired.Inc()
	return nil
}
