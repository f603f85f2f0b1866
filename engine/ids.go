package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/store"
)

// reserveIDs takes n consecutive job ids from the queue type's counter and
// returns the first. Ids start at 1. Ids reserved by an Enqueue that later
// loses a deduplication race are never reused, so ids may have gaps.
func (e *Engine) reserveIDs(ctx context.Context, qt job.QueueType, n int) (int64, error) {
	key := counterKey(qt)

	for attempt := 1; attempt <= e.conflictRetries; attempt++ {
		first, err := e.tryReserve(ctx, key, n)
		if err == nil {
			return first, nil
		}
		if !retryable(err) {
			return 0, storeErr("reserve ids", err)
		}

		e.logger.Debug("id counter contention",
			"queue_type", qt,
			"attempt", attempt,
			"error", err,
		)
		if err := e.pause(ctx, attempt); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("lakequeue/engine: reserve ids for queue type %d: %w", qt, lakequeue.ErrConcurrencyExhausted)
}

func (e *Engine) tryReserve(ctx context.Context, key string, n int) (int64, error) {
	ent, err := e.records.Get(ctx, key, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return 1, e.writeCounter(ctx, store.OpInsert, key, "", int64(1+n))
	case err != nil:
		return 0, err
	}

	var c counterEntity
	if err := e.codec.Unmarshal(ent.Value, &c); err != nil {
		return 0, fmt.Errorf("decode id counter: %w", err)
	}
	if c.NextID < 1 {
		c.NextID = 1
	}
	return c.NextID, e.writeCounter(ctx, store.OpReplace, key, ent.Token, c.NextID+int64(n))
}

func (e *Engine) writeCounter(ctx context.Context, op store.Op, key, token string, next int64) error {
	data, err := e.codec.Marshal(counterEntity{NextID: next})
	if err != nil {
		return fmt.Errorf("encode id counter: %w", err)
	}
	ent := &store.Entity{Partition: key, Key: key, Token: token, Value: data}
	_, err = e.records.Apply(ctx, key, []store.Write{{Op: op, Entity: ent}})
	return err
}
