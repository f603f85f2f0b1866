// Package ext lets callers observe the job lifecycle without touching the
// engine or the hosting loop.
//
// Each hook is its own interface, so an extension implements only the
// events it cares about:
//
//	type auditLog struct{}
//
//	func (auditLog) Name() string { return "audit" }
//
//	func (auditLog) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
//	    log.Printf("job %d/%d failed: %v", j.QueueType, j.ID, err)
//	    return nil
//	}
//
// # Engine Hooks
//
//   - [JobEnqueued]: a definition was accepted, new or deduplicated
//   - [JobDequeued]: a worker claimed a lease
//   - [JobCompleted], [JobFailed], [JobCancelled]: a job reached a terminal state
//   - [LeaseLost]: a worker's lease was taken over or expired
//   - [MessageDiscarded]: an orphaned or stale dispatch message was dropped
//
// # Host and Scheduler Hooks
//
//   - [JobDeclined]: the job factory refused a job
//   - [CronFired]: a cron entry enqueued its jobs
//   - [Shutdown]: the host is stopping
//
// Hook errors are logged and never propagated.
package ext
