package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/store"
)

// CancelByID requests cancellation of one job. A job that has not started
// yet is cancelled immediately; a running job sees the request on its next
// KeepAlive. Finished jobs are left alone.
func (e *Engine) CancelByID(ctx context.Context, qt job.QueueType, id int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	idx, err := e.lookupIndex(ctx, qt, id)
	if err != nil {
		return err
	}
	ent, err := e.records.Get(ctx, idx.Partition, idx.Key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lakequeue/engine: job %d: %w", id, lakequeue.ErrJobNotFound)
	}
	if err != nil {
		return storeErr("cancel: read job", err)
	}
	return e.cancel(ctx, ent)
}

// CancelByGroupID requests cancellation of every job in a group.
// Per-job failures are joined; the remaining jobs are still processed.
func (e *Engine) CancelByGroupID(ctx context.Context, qt job.QueueType, groupID int64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if groupID < 0 {
		return lakequeue.ErrInvalidGroupID
	}
	from, to := groupRange(groupID)
	ents, err := e.records.Range(ctx, jobPartition(qt, groupID), from, to)
	if err != nil {
		return storeErr("cancel group", err)
	}

	var errs []error
	for _, ent := range ents {
		if err := e.cancel(ctx, ent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// cancel marks the record held in ent as cancel-requested, re-reading it
// after every lost race.
func (e *Engine) cancel(ctx context.Context, ent *store.Entity) error {
	for attempt := 1; attempt <= e.conflictRetries; attempt++ {
		j, err := e.decodeJob(ent, nil)
		if err != nil {
			return err
		}
		if j.Status.IsTerminal() || (j.CancelRequested && j.Status != job.StatusCreated) {
			return nil
		}

		j.CancelRequested = true
		cancelled := j.Status == job.StatusCreated
		if cancelled {
			now := e.now().UTC()
			j.Status = job.StatusCancelled
			j.EndTime = &now
		}

		rec, err := e.jobEntity(ent.Partition, j)
		if err != nil {
			return fmt.Errorf("lakequeue/engine: cancel: %w", err)
		}
		tokens, err := e.records.Apply(ctx, ent.Partition, []store.Write{store.Replace(rec)})
		if err == nil {
			j.Token = tokens[0]
			e.logger.Info("job cancellation requested",
				"job_id", j.ID,
				"queue_type", j.QueueType,
				"group_id", j.GroupID,
				"status", j.Status,
			)
			if cancelled {
				e.extensions.EmitJobCancelled(ctx, j)
			}
			return nil
		}
		if !retryable(err) {
			return storeErr("cancel", err)
		}
		if err := e.pause(ctx, attempt); err != nil {
			return err
		}
		ent, err = e.records.Get(ctx, ent.Partition, ent.Key)
		if err != nil {
			return storeErr("cancel: reread job", err)
		}
	}
	return fmt.Errorf("lakequeue/engine: cancel %s: %w", ent.Key, lakequeue.ErrConcurrencyExhausted)
}
