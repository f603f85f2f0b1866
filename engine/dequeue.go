package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/queue"
	"github.com/xraph/lakequeue/store"
)

// Discard reasons passed to MessageDiscarded hooks.
const (
	ReasonUnparseable   = "unparseable"
	ReasonMissingRecord = "missing record"
	ReasonTerminal      = "terminal record"
	ReasonStaleMessage  = "stale message"
	ReasonLeaseHeld     = "lease held"
	ReasonClaimConflict = "claim conflict"
)

// Dequeue leases the next available job of queueType for
// heartbeatTimeoutSeconds (or the default visibility when not positive).
//
// It returns (nil, nil) when there is nothing to run, and
// lakequeue.ErrMessageDiscarded when the received message did not yield a
// lease; callers poll again in both cases.
func (e *Engine) Dequeue(ctx context.Context, qt job.QueueType, workerID string, heartbeatTimeoutSeconds int64) (*job.Job, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	vis := e.visibility(heartbeatTimeoutSeconds)
	name := e.QueueName(qt)

	msg, err := e.messages.Receive(ctx, name, vis)
	if err != nil {
		return nil, fmt.Errorf("lakequeue/engine: dequeue: receive: %w", err)
	}
	if msg == nil {
		return nil, nil //nolint:nilnil // empty queue
	}

	var m message
	if err := json.Unmarshal(msg.Body, &m); err != nil || m.JobPartition == "" || m.JobKey == "" || m.LockKey == "" {
		e.logger.Warn("deleting unparseable dispatch message",
			"queue_type", qt,
			"message_id", msg.ID,
		)
		e.discard(ctx, qt, name, msg, ReasonUnparseable)
		return nil, nil //nolint:nilnil // nothing to run
	}

	lock, lockToken, err := e.readLock(ctx, m.JobPartition, m.LockKey)
	if errors.Is(err, store.ErrNotFound) {
		e.discard(ctx, qt, name, msg, ReasonMissingRecord)
		return nil, lakequeue.ErrMessageDiscarded
	}
	if err != nil {
		return nil, storeErr("dequeue: read lock", err)
	}
	if lock.MessageID == "" {
		// The enqueuer has sent the message but not yet recorded it. The
		// message reappears once its visibility lapses.
		e.logger.Debug("dispatch message not yet attached",
			"queue_type", qt,
			"message_id", msg.ID,
		)
		return nil, nil //nolint:nilnil // not yet dispatchable
	}
	if lock.MessageID != msg.ID {
		e.logger.Warn("deleting stale dispatch message",
			"queue_type", qt,
			"message_id", msg.ID,
			"current_message_id", lock.MessageID,
		)
		e.discard(ctx, qt, name, msg, ReasonStaleMessage)
		return nil, lakequeue.ErrMessageDiscarded
	}

	j, err := e.readJob(ctx, m.JobPartition, m.JobKey)
	if errors.Is(err, store.ErrNotFound) {
		e.discard(ctx, qt, name, msg, ReasonMissingRecord)
		return nil, lakequeue.ErrMessageDiscarded
	}
	if err != nil {
		return nil, storeErr("dequeue: read job", err)
	}
	if j.Status.IsTerminal() {
		e.logger.Debug("deleting message of finished job",
			"job_id", j.ID,
			"status", j.Status,
			"message_id", msg.ID,
		)
		e.discard(ctx, qt, name, msg, ReasonTerminal)
		return nil, lakequeue.ErrMessageDiscarded
	}

	now := e.now().UTC()
	if j.Status == job.StatusRunning && !j.HeartbeatExpired(now, vis) {
		e.logger.Warn("job lease still held",
			"job_id", j.ID,
			"group_id", j.GroupID,
			"message_id", msg.ID,
			"worker_id", workerID,
		)
		e.extensions.EmitMessageDiscarded(ctx, qt, msg.ID, ReasonLeaseHeld)
		return nil, lakequeue.ErrMessageDiscarded
	}

	j.Status = job.StatusRunning
	j.Version = max(now.UnixNano(), j.Version+1)
	j.HeartbeatTime = now
	j.HeartbeatTimeoutSeconds = int64(vis.Seconds())
	if j.StartTime == nil {
		started := now
		j.StartTime = &started
	}
	lock.Receipt = msg.Receipt

	rec, err := e.jobEntity(m.JobPartition, j)
	if err != nil {
		return nil, fmt.Errorf("lakequeue/engine: dequeue: %w", err)
	}
	lockEnt, err := e.lockEntity(m.JobPartition, m.LockKey, lockToken, lock)
	if err != nil {
		return nil, fmt.Errorf("lakequeue/engine: dequeue: %w", err)
	}
	tokens, err := e.records.Apply(ctx, m.JobPartition, []store.Write{store.Replace(rec), store.Replace(lockEnt)})
	if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
		e.logger.Info("lost dequeue race",
			"job_id", j.ID,
			"worker_id", workerID,
		)
		e.extensions.EmitMessageDiscarded(ctx, qt, msg.ID, ReasonClaimConflict)
		return nil, lakequeue.ErrMessageDiscarded
	}
	if err != nil {
		return nil, storeErr("dequeue: claim", err)
	}
	j.Token = tokens[0]

	e.logger.Info("job dequeued",
		"job_id", j.ID,
		"queue_type", qt,
		"group_id", j.GroupID,
		"worker_id", workerID,
		"dequeue_count", msg.DequeueCount,
	)
	e.extensions.EmitJobDequeued(ctx, j, workerID)
	return j, nil
}

// discard deletes a message that can never yield a lease.
func (e *Engine) discard(ctx context.Context, qt job.QueueType, name string, msg *queue.Message, reason string) {
	if err := e.messages.Delete(ctx, name, msg.ID, msg.Receipt); err != nil && !errors.Is(err, queue.ErrMessageNotFound) {
		e.logger.Warn("delete discarded message",
			"queue_type", qt,
			"message_id", msg.ID,
			"error", err,
		)
	}
	e.extensions.EmitMessageDiscarded(ctx, qt, msg.ID, reason)
}
