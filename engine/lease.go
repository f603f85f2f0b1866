package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/queue"
	"github.com/xraph/lakequeue/store"
)

// KeepAlive renews the lease on j, persists j.Result as progress and
// reports whether cancellation has been requested. It returns
// lakequeue.ErrLeaseLost when another worker has taken the job over.
func (e *Engine) KeepAlive(ctx context.Context, j *job.Job) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	partition := jobPartition(j.QueueType, j.GroupID)
	cur, err := e.readCurrent(ctx, partition, j)
	if err != nil {
		return false, err
	}

	lk, err := e.lockKeyFor(j)
	if err != nil {
		return false, err
	}
	lock, lockToken, err := e.readLock(ctx, partition, lk)
	if errors.Is(err, store.ErrNotFound) {
		return false, e.leaseLost(ctx, j, "lock missing", slog.LevelWarn)
	}
	if err != nil {
		return false, storeErr("keepalive: read lock", err)
	}

	timeout := time.Duration(cur.HeartbeatTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = e.defaultVisibility
	}
	messageID := lock.MessageID
	receipt, err := e.messages.Extend(ctx, e.QueueName(j.QueueType), messageID, lock.Receipt, timeout)
	if errors.Is(err, queue.ErrMessageNotFound) {
		level := slog.LevelWarn
		if j.Status.IsTerminal() {
			level = slog.LevelInfo
		}
		return false, e.leaseLost(ctx, j, "dispatch message gone", level)
	}
	if err != nil {
		return false, fmt.Errorf("lakequeue/engine: keepalive: extend job %d: %w", j.ID, err)
	}

	now := e.now().UTC()
	for attempt := 1; attempt <= e.conflictRetries; attempt++ {
		if attempt > 1 {
			if err := e.pause(ctx, attempt-1); err != nil {
				return false, err
			}
			if cur, err = e.readCurrent(ctx, partition, j); err != nil {
				return false, err
			}
			lock, lockToken, err = e.readLock(ctx, partition, lk)
			if errors.Is(err, store.ErrNotFound) {
				return false, e.leaseLost(ctx, j, "lock missing", slog.LevelWarn)
			}
			if err != nil {
				return false, storeErr("keepalive: read lock", err)
			}
			if lock.MessageID != messageID {
				return false, e.leaseLost(ctx, j, "dispatch message replaced", slog.LevelWarn)
			}
		}

		cur.HeartbeatTime = now
		cur.Result = j.Result
		lock.Receipt = receipt

		rec, err := e.jobEntity(partition, cur)
		if err != nil {
			return false, fmt.Errorf("lakequeue/engine: keepalive: %w", err)
		}
		lockEnt, err := e.lockEntity(partition, lk, lockToken, lock)
		if err != nil {
			return false, fmt.Errorf("lakequeue/engine: keepalive: %w", err)
		}
		tokens, err := e.records.Apply(ctx, partition, []store.Write{store.Replace(rec), store.Replace(lockEnt)})
		if err == nil {
			j.HeartbeatTime = now
			j.CancelRequested = cur.CancelRequested
			j.Token = tokens[0]
			return cur.CancelRequested, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return false, e.leaseLost(ctx, j, "record gone", slog.LevelWarn)
		}
		if !retryable(err) {
			return false, storeErr("keepalive", err)
		}
		// A cancel request or a concurrent writer touched the record; the
		// next pass re-reads it and still requires the same version.
	}
	return false, fmt.Errorf("lakequeue/engine: keepalive job %d: %w", j.ID, lakequeue.ErrConcurrencyExhausted)
}

// Complete finalizes the job leased as j. The final status is Failed when
// j.Status is Failed, Cancelled when cancellation was requested, and
// Completed otherwise. j is updated in place. When the job failed and
// requestCancellationOnFailure is set, the rest of its group is
// cancelled.
func (e *Engine) Complete(ctx context.Context, j *job.Job, requestCancellationOnFailure bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	partition := jobPartition(j.QueueType, j.GroupID)
	now := e.now().UTC()
	cur, err := e.finalize(ctx, partition, j, now)
	if err != nil {
		return err
	}

	e.deleteMessage(ctx, partition, cur)

	*j = *cur.Clone()

	var elapsed time.Duration
	if j.StartTime != nil {
		elapsed = now.Sub(*j.StartTime)
	}
	e.logger.Info("job finished",
		"job_id", j.ID,
		"queue_type", j.QueueType,
		"group_id", j.GroupID,
		"status", j.Status,
		"elapsed", elapsed,
	)
	switch j.Status {
	case job.StatusFailed:
		e.extensions.EmitJobFailed(ctx, j, errors.New(j.Result))
	case job.StatusCancelled:
		e.extensions.EmitJobCancelled(ctx, j)
	default:
		e.extensions.EmitJobCompleted(ctx, j, elapsed)
	}

	if j.Status == job.StatusFailed && requestCancellationOnFailure {
		if err := e.CancelByGroupID(ctx, j.QueueType, j.GroupID); err != nil {
			return fmt.Errorf("lakequeue/engine: complete: cancel group %d: %w", j.GroupID, err)
		}
	}
	return nil
}

// finalize writes the terminal status of j. A token conflict with the
// version unchanged means someone else (typically a cancel) rewrote the
// record; the status is recomputed on the fresh copy and written again.
func (e *Engine) finalize(ctx context.Context, partition string, j *job.Job, now time.Time) (*job.Job, error) {
	for attempt := 1; attempt <= e.conflictRetries; attempt++ {
		if attempt > 1 {
			if err := e.pause(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		cur, err := e.readCurrent(ctx, partition, j)
		if err != nil {
			return nil, err
		}

		switch {
		case j.Status == job.StatusFailed:
			cur.Status = job.StatusFailed
		case cur.CancelRequested:
			cur.Status = job.StatusCancelled
		default:
			cur.Status = job.StatusCompleted
		}
		cur.Result = j.Result
		cur.EndTime = &now

		rec, err := e.jobEntity(partition, cur)
		if err != nil {
			return nil, fmt.Errorf("lakequeue/engine: complete: %w", err)
		}
		tokens, err := e.records.Apply(ctx, partition, []store.Write{store.Replace(rec)})
		if err == nil {
			cur.Token = tokens[0]
			return cur, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, e.leaseLost(ctx, j, "record gone", slog.LevelWarn)
		}
		if !retryable(err) {
			return nil, storeErr("complete", err)
		}
	}
	return nil, fmt.Errorf("lakequeue/engine: complete job %d: %w", j.ID, lakequeue.ErrConcurrencyExhausted)
}

// readCurrent reads the stored record of j and checks that j still holds
// its lease: the record is Running under the version j was handed.
func (e *Engine) readCurrent(ctx context.Context, partition string, j *job.Job) (*job.Job, error) {
	if j.Version == 0 {
		return nil, e.leaseLost(ctx, j, "never leased", slog.LevelWarn)
	}
	cur, err := e.readJob(ctx, partition, jobKey(j.GroupID, j.ID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lakequeue/engine: job %d: %w", j.ID, lakequeue.ErrJobNotFound)
	}
	if err != nil {
		return nil, storeErr("read job", err)
	}
	if cur.Version != j.Version {
		return nil, e.leaseLost(ctx, j, "version changed", slog.LevelWarn)
	}
	if cur.Status != job.StatusRunning {
		return nil, e.leaseLost(ctx, j, "job already "+string(cur.Status), slog.LevelInfo)
	}
	return cur, nil
}

func (e *Engine) lockKeyFor(j *job.Job) (string, error) {
	ident, err := e.identifier.Identify(j.Definition)
	if err != nil {
		return "", fmt.Errorf("lakequeue/engine: identify job %d: %w", j.ID, err)
	}
	return lockKey(ident), nil
}

// deleteMessage removes the dispatch message of a finished job. A message
// that is already gone is fine; anything else only delays cleanup, since
// Dequeue discards messages of terminal records.
func (e *Engine) deleteMessage(ctx context.Context, partition string, j *job.Job) {
	lk, err := e.lockKeyFor(j)
	if err != nil {
		e.logger.Warn("skip message delete", "job_id", j.ID, "error", err)
		return
	}
	lock, _, err := e.readLock(ctx, partition, lk)
	if err != nil {
		e.logger.Warn("skip message delete", "job_id", j.ID, "error", err)
		return
	}
	err = e.messages.Delete(ctx, e.QueueName(j.QueueType), lock.MessageID, lock.Receipt)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrMessageNotFound):
		e.logger.Debug("dispatch message already gone", "job_id", j.ID, "message_id", lock.MessageID)
	default:
		e.logger.Warn("delete dispatch message", "job_id", j.ID, "message_id", lock.MessageID, "error", err)
	}
}

func (e *Engine) leaseLost(ctx context.Context, j *job.Job, reason string, level slog.Level) error {
	err := fmt.Errorf("lakequeue/engine: job %d: %s: %w", j.ID, reason, lakequeue.ErrLeaseLost)
	e.logger.Log(ctx, level, "lease lost",
		"job_id", j.ID,
		"queue_type", j.QueueType,
		"group_id", j.GroupID,
		"reason", reason,
	)
	e.extensions.EmitLeaseLost(ctx, j, err)
	return err
}
