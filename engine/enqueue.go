package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/store"
)

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	groupID             int64
	forceOneActiveGroup bool
	markCompleted       bool
}

// WithGroupID places the jobs in group g. The default group is 0.
func WithGroupID(g int64) EnqueueOption {
	return func(o *enqueueOptions) { o.groupID = g }
}

// ForceOneActiveGroup is accepted for API compatibility and has no effect.
func ForceOneActiveGroup(b bool) EnqueueOption {
	return func(o *enqueueOptions) { o.forceOneActiveGroup = b }
}

// MarkCompleted is accepted for API compatibility and has no effect.
func MarkCompleted(b bool) EnqueueOption {
	return func(o *enqueueOptions) { o.markCompleted = b }
}

// pending tracks one distinct definition through Enqueue.
type pending struct {
	definition string
	lockKey    string
	job        *job.Job
	lock       lockEntity
	lockToken  string
	created    bool
}

// Enqueue creates a job record for every definition that does not already
// have one in the target group, and dispatches a message for each record
// that lacks one. It returns the records in input order; definitions that
// identify as the same job map to the same record.
//
// Enqueue is safe to retry after any failure: the record store's
// insert-if-absent on the lock key makes the whole operation idempotent.
func (e *Engine) Enqueue(ctx context.Context, qt job.QueueType, definitions []string, opts ...EnqueueOption) ([]*job.Job, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var o enqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.groupID < 0 {
		return nil, lakequeue.ErrInvalidGroupID
	}
	if len(definitions) > e.maxBatch {
		return nil, fmt.Errorf("lakequeue/engine: enqueue %d definitions (max %d): %w",
			len(definitions), e.maxBatch, lakequeue.ErrBatchTooLarge)
	}
	if len(definitions) == 0 {
		return []*job.Job{}, nil
	}

	order := make([]*pending, len(definitions))
	byKey := make(map[string]*pending, len(definitions))
	var unique []*pending
	for i, def := range definitions {
		ident, err := e.identifier.Identify(def)
		if err != nil {
			return nil, fmt.Errorf("lakequeue/engine: identify definition %d: %w", i, err)
		}
		key := lockKey(ident)
		if p, ok := byKey[key]; ok {
			order[i] = p
			continue
		}
		p := &pending{definition: def, lockKey: key}
		byKey[key] = p
		order[i] = p
		unique = append(unique, p)
	}

	first, err := e.reserveIDs(ctx, qt, len(unique))
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	partition := jobPartition(qt, o.groupID)
	for i, p := range unique {
		p.job = &job.Job{
			ID:            first + int64(i),
			QueueType:     qt,
			GroupID:       o.groupID,
			Status:        job.StatusCreated,
			Definition:    p.definition,
			CreateTime:    now,
			HeartbeatTime: now,
		}
		p.lock = lockEntity{JobKey: jobKey(o.groupID, p.job.ID)}
	}

	if err := e.insertAll(ctx, partition, unique); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, storeErr("enqueue", err)
		}
		for _, p := range unique {
			if err := e.insertOrLoad(ctx, partition, p); err != nil {
				return nil, err
			}
		}
	}

	for _, p := range unique {
		e.index(ctx, qt, partition, p.job)
	}

	for _, p := range unique {
		if p.lock.MessageID != "" {
			continue
		}
		if err := e.dispatch(ctx, qt, partition, p); err != nil {
			return nil, err
		}
	}

	out := make([]*job.Job, len(order))
	seen := make(map[*pending]bool, len(unique))
	for i, p := range order {
		out[i] = p.job.Clone()
		e.extensions.EmitJobEnqueued(ctx, out[i], p.created && !seen[p])
		seen[p] = true
	}
	return out, nil
}

// insertAll writes every new record and lock in one atomic batch.
func (e *Engine) insertAll(ctx context.Context, partition string, ps []*pending) error {
	writes := make([]store.Write, 0, 2*len(ps))
	for _, p := range ps {
		rec, lock, err := e.newEntities(partition, p)
		if err != nil {
			return err
		}
		writes = append(writes, store.Insert(rec), store.Insert(lock))
	}

	tokens, err := e.records.Apply(ctx, partition, writes)
	if err != nil {
		return err
	}
	for i, p := range ps {
		p.job.Token = tokens[2*i]
		p.lockToken = tokens[2*i+1]
		p.created = true
	}
	return nil
}

// insertOrLoad inserts one record and lock, or loads the record an
// earlier Enqueue created for the same definition.
func (e *Engine) insertOrLoad(ctx context.Context, partition string, p *pending) error {
	rec, lock, err := e.newEntities(partition, p)
	if err != nil {
		return storeErr("enqueue", err)
	}
	tokens, err := e.records.Apply(ctx, partition, []store.Write{store.Insert(rec), store.Insert(lock)})
	if err == nil {
		p.job.Token = tokens[0]
		p.lockToken = tokens[1]
		p.created = true
		return nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return storeErr("enqueue", err)
	}

	existing, token, err := e.readLock(ctx, partition, p.lockKey)
	if err != nil {
		return storeErr("enqueue: read lock", err)
	}
	j, err := e.readJob(ctx, partition, existing.JobKey)
	if err != nil {
		return storeErr("enqueue: read existing job", err)
	}
	p.job = j
	p.lock = existing
	p.lockToken = token
	return nil
}

func (e *Engine) newEntities(partition string, p *pending) (*store.Entity, *store.Entity, error) {
	rec, err := e.jobEntity(partition, p.job)
	if err != nil {
		return nil, nil, err
	}
	lock, err := e.lockEntity(partition, p.lockKey, "", p.lock)
	if err != nil {
		return nil, nil, err
	}
	return rec, lock, nil
}

// index records the reverse mapping id -> (partition, key). It is a
// secondary structure: failures are logged and a later Enqueue of the
// same definition repairs a missing entry.
func (e *Engine) index(ctx context.Context, qt job.QueueType, partition string, j *job.Job) {
	data, err := e.codec.Marshal(indexEntity{Partition: partition, Key: jobKey(j.GroupID, j.ID)})
	if err != nil {
		e.logger.Error("encode index entry", "job_id", j.ID, "error", err)
		return
	}
	ip := indexPartition(qt)
	ent := &store.Entity{Partition: ip, Key: indexKey(qt, j.ID), Value: data}
	_, err = e.records.Apply(ctx, ip, []store.Write{store.Insert(ent)})
	if err != nil && !errors.Is(err, store.ErrConflict) {
		e.logger.Warn("reverse index insert failed",
			"job_id", j.ID,
			"queue_type", qt,
			"error", err,
		)
	}
}

// dispatch sends the job's message and records its id on the lock.
func (e *Engine) dispatch(ctx context.Context, qt job.QueueType, partition string, p *pending) error {
	body, err := json.Marshal(message{
		JobPartition: partition,
		JobKey:       p.lock.JobKey,
		LockKey:      p.lockKey,
	})
	if err != nil {
		return fmt.Errorf("lakequeue/engine: encode message: %w", err)
	}

	msg, err := e.messages.Send(ctx, e.QueueName(qt), body)
	if err != nil {
		return fmt.Errorf("lakequeue/engine: enqueue: send message for job %d: %w", p.job.ID, err)
	}

	lock := p.lock
	lock.MessageID = msg.ID
	ent, err := e.lockEntity(partition, p.lockKey, p.lockToken, lock)
	if err != nil {
		return fmt.Errorf("lakequeue/engine: %w", err)
	}
	tokens, err := e.records.Apply(ctx, partition, []store.Write{store.Replace(ent)})
	switch {
	case err == nil:
		p.lock = lock
		p.lockToken = tokens[0]
	case errors.Is(err, store.ErrConflict):
		// A concurrent Enqueue attached its own message first. Ours no
		// longer matches the lock and Dequeue will discard it.
		e.logger.Warn("lost race attaching dispatch message",
			"job_id", p.job.ID,
			"queue_type", qt,
			"message_id", msg.ID,
		)
	default:
		return storeErr("enqueue: attach message", err)
	}
	return nil
}
