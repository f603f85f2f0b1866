package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/lakequeue/job"
)

// entry pairs a hook with the extension name captured at registration.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and fans lifecycle events out to
// them. Extensions are type-cached at registration so each emit iterates
// only over the extensions implementing that hook. A nil *Registry is
// valid and emits nothing.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued      []entry[JobEnqueued]
	jobDequeued      []entry[JobDequeued]
	jobCompleted     []entry[JobCompleted]
	jobFailed        []entry[JobFailed]
	jobCancelled     []entry[JobCancelled]
	leaseLost        []entry[LeaseLost]
	messageDiscarded []entry[MessageDiscarded]
	jobDeclined      []entry[JobDeclined]
	cronFired        []entry[CronFired]
	shutdown         []entry[Shutdown]
}

// NewRegistry creates a registry that logs hook failures to logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension. Extensions are notified in registration
// order. Register is not safe to call concurrently with emits.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, entry[JobEnqueued]{name, h})
	}
	if h, ok := e.(JobDequeued); ok {
		r.jobDequeued = append(r.jobDequeued, entry[JobDequeued]{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, entry[JobCompleted]{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, entry[JobFailed]{name, h})
	}
	if h, ok := e.(JobCancelled); ok {
		r.jobCancelled = append(r.jobCancelled, entry[JobCancelled]{name, h})
	}
	if h, ok := e.(LeaseLost); ok {
		r.leaseLost = append(r.leaseLost, entry[LeaseLost]{name, h})
	}
	if h, ok := e.(MessageDiscarded); ok {
		r.messageDiscarded = append(r.messageDiscarded, entry[MessageDiscarded]{name, h})
	}
	if h, ok := e.(JobDeclined); ok {
		r.jobDeclined = append(r.jobDeclined, entry[JobDeclined]{name, h})
	}
	if h, ok := e.(CronFired); ok {
		r.cronFired = append(r.cronFired, entry[CronFired]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	if r == nil {
		return nil
	}
	return r.extensions
}

// EmitJobEnqueued notifies JobEnqueued hooks.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job, created bool) {
	if r == nil {
		return
	}
	for _, e := range r.jobEnqueued {
		r.check("OnJobEnqueued", e.name, e.hook.OnJobEnqueued(ctx, j, created))
	}
}

// EmitJobDequeued notifies JobDequeued hooks.
func (r *Registry) EmitJobDequeued(ctx context.Context, j *job.Job, workerID string) {
	if r == nil {
		return
	}
	for _, e := range r.jobDequeued {
		r.check("OnJobDequeued", e.name, e.hook.OnJobDequeued(ctx, j, workerID))
	}
}

// EmitJobCompleted notifies JobCompleted hooks.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	if r == nil {
		return
	}
	for _, e := range r.jobCompleted {
		r.check("OnJobCompleted", e.name, e.hook.OnJobCompleted(ctx, j, elapsed))
	}
}

// EmitJobFailed notifies JobFailed hooks.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	if r == nil {
		return
	}
	for _, e := range r.jobFailed {
		r.check("OnJobFailed", e.name, e.hook.OnJobFailed(ctx, j, jobErr))
	}
}

// EmitJobCancelled notifies JobCancelled hooks.
func (r *Registry) EmitJobCancelled(ctx context.Context, j *job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.jobCancelled {
		r.check("OnJobCancelled", e.name, e.hook.OnJobCancelled(ctx, j))
	}
}

// EmitLeaseLost notifies LeaseLost hooks.
func (r *Registry) EmitLeaseLost(ctx context.Context, j *job.Job, cause error) {
	if r == nil {
		return
	}
	for _, e := range r.leaseLost {
		r.check("OnLeaseLost", e.name, e.hook.OnLeaseLost(ctx, j, cause))
	}
}

// EmitMessageDiscarded notifies MessageDiscarded hooks.
func (r *Registry) EmitMessageDiscarded(ctx context.Context, qt job.QueueType, messageID, reason string) {
	if r == nil {
		return
	}
	for _, e := range r.messageDiscarded {
		r.check("OnMessageDiscarded", e.name, e.hook.OnMessageDiscarded(ctx, qt, messageID, reason))
	}
}

// EmitJobDeclined notifies JobDeclined hooks.
func (r *Registry) EmitJobDeclined(ctx context.Context, j *job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.jobDeclined {
		r.check("OnJobDeclined", e.name, e.hook.OnJobDeclined(ctx, j))
	}
}

// EmitCronFired notifies CronFired hooks.
func (r *Registry) EmitCronFired(ctx context.Context, entryName string, jobs []*job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.cronFired {
		r.check("OnCronFired", e.name, e.hook.OnCronFired(ctx, entryName, jobs))
	}
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	if r == nil {
		return
	}
	for _, e := range r.shutdown {
		r.check("OnShutdown", e.name, e.hook.OnShutdown(ctx))
	}
}

// check logs a hook failure. Hook errors never reach the caller.
func (r *Registry) check(hook, extName string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
