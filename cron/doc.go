// Package cron enqueues jobs on a schedule.
//
// # Entry
//
// An [Entry] represents a recurring enqueue:
//   - Schedule: standard cron expression (e.g., "0 9 * * 1-5")
//   - QueueType / GroupID: where the jobs go
//   - Build: returns the definitions for a scheduled slot
//   - Enabled: whether the entry fires
//
// # Running on many instances
//
// There is no leader. Each instance runs its own [Scheduler] and fires
// every due slot. Build receives the slot time, not the wall clock, so
// two instances firing the same slot produce the same definitions and the
// engine's idempotent enqueue turns them into a single job. Use
// calendar expressions for this; "@every" schedules are anchored to each
// scheduler's start time and do not line up across instances.
//
// [Template] builds a definition from a static JSON object by stamping
// the slot into one of its properties:
//
//	build, _ := cron.Template(`{"jobType":"export"}`, "")
//	_ = s.Add(&cron.Entry{Name: "nightly", Schedule: "0 2 * * *", Build: build, Enabled: true})
//
// The [ext.CronFired] hook fires after each enqueue.
package cron
