package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/store"
)

// GetByID returns one job. Without returnDefinition the Definition field
// is left empty.
func (e *Engine) GetByID(ctx context.Context, qt job.QueueType, id int64, returnDefinition bool) (*job.Job, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	idx, err := e.lookupIndex(ctx, qt, id)
	if err != nil {
		return nil, err
	}
	ent, err := e.records.Get(ctx, idx.Partition, idx.Key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lakequeue/engine: job %d: %w", id, lakequeue.ErrJobNotFound)
	}
	if err != nil {
		return nil, storeErr("get job", err)
	}
	return e.decodeJob(ent, projection(returnDefinition))
}

// GetByIDs returns the given jobs in input order. Reads run in parallel,
// bounded by the lookup concurrency. Any missing job fails the call.
func (e *Engine) GetByIDs(ctx context.Context, qt job.QueueType, ids []int64, returnDefinition bool) ([]*job.Job, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	out := make([]*job.Job, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.lookupConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			j, err := e.GetByID(gctx, qt, id, returnDefinition)
			if err != nil {
				return err
			}
			out[i] = j
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByGroupID returns every job of a group in id order.
func (e *Engine) GetByGroupID(ctx context.Context, qt job.QueueType, groupID int64, returnDefinition bool) ([]*job.Job, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if groupID < 0 {
		return nil, lakequeue.ErrInvalidGroupID
	}
	from, to := groupRange(groupID)
	ents, err := e.records.Range(ctx, jobPartition(qt, groupID), from, to)
	if err != nil {
		return nil, storeErr("get group", err)
	}
	out := make([]*job.Job, 0, len(ents))
	for _, ent := range ents {
		j, err := e.decodeJob(ent, projection(returnDefinition))
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func (e *Engine) lookupIndex(ctx context.Context, qt job.QueueType, id int64) (indexEntity, error) {
	var idx indexEntity
	ent, err := e.records.Get(ctx, indexPartition(qt), indexKey(qt, id))
	if errors.Is(err, store.ErrNotFound) {
		return idx, fmt.Errorf("lakequeue/engine: job %d: %w", id, lakequeue.ErrJobNotFound)
	}
	if err != nil {
		return idx, storeErr("read index", err)
	}
	if err := e.codec.Unmarshal(ent.Value, &idx); err != nil {
		return idx, fmt.Errorf("lakequeue/engine: decode index entry %d: %w", id, err)
	}
	return idx, nil
}

func projection(returnDefinition bool) []job.Field {
	if returnDefinition {
		return nil
	}
	return job.FieldsWithoutDefinition
}
