package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued     = "job.enqueued"
	ActionJobDeduplicated = "job.deduplicated"
	ActionJobDequeued     = "job.dequeued"
	ActionJobCompleted    = "job.completed"
	ActionJobFailed       = "job.failed"
	ActionJobCancelled    = "job.cancelled"
	ActionJobDeclined     = "job.declined"
	ActionLeaseLost       = "job.lease_lost"
	ActionCronFired       = "cron.fired"
)

// Audit event categories group related actions.
const (
	CategoryJob  = "lakequeue.job"
	CategoryCron = "lakequeue.cron"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob  = "job"
	ResourceCron = "cron_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobDeduplicated,
		ActionJobDequeued,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobCancelled,
		ActionJobDeclined,
		ActionLeaseLost,
		ActionCronFired,
	}
}
