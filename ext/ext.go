package ext

import (
	"context"
	"time"

	"github.com/xraph/lakequeue/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Engine hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called once per definition passed to Enqueue. created is
// false when the definition matched an existing job.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job, created bool) error
}

// JobDequeued is called after a worker claimed a lease on j.
type JobDequeued interface {
	OnJobDequeued(ctx context.Context, j *job.Job, workerID string) error
}

// JobCompleted is called after j was finalized as completed.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called after j was finalized as failed.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobCancelled is called when j reaches the cancelled state, either by a
// cancel request on a job that never started or by a running job
// finishing after cancellation was requested.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job) error
}

// LeaseLost is called when a worker finds that its lease on j is gone.
type LeaseLost interface {
	OnLeaseLost(ctx context.Context, j *job.Job, err error) error
}

// MessageDiscarded is called when Dequeue drops or skips a dispatch
// message that does not lead to a runnable job.
type MessageDiscarded interface {
	OnMessageDiscarded(ctx context.Context, queueType job.QueueType, messageID, reason string) error
}

// ──────────────────────────────────────────────────
// Host and scheduler hooks
// ──────────────────────────────────────────────────

// JobDeclined is called when the job factory refused to build a body for j.
type JobDeclined interface {
	OnJobDeclined(ctx context.Context, j *job.Job) error
}

// CronFired is called after a cron entry fired and enqueued its jobs.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, jobs []*job.Job) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
