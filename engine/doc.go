// Package engine implements the lakequeue job queue client on top of a
// partitioned record store and a dispatch queue.
//
// The record store is authoritative. Every job lives in the partition of
// its (queue type, group) pair, next to a lock entity keyed by the job's
// identifier. The lock makes Enqueue idempotent and remembers which
// dispatch message currently represents the job. Dispatch messages only
// point at the lock; a message whose id the lock no longer names is
// stale and is discarded on receipt.
//
// A lease is the pair (record Version, message receipt). Dequeue claims
// both with one conditional write; KeepAlive and Complete fail with
// lakequeue.ErrLeaseLost once another worker has claimed the job.
//
//	eng := engine.New(records, messages,
//	    engine.WithLogger(logger),
//	    engine.WithCodec(engine.MapCodec{}),
//	)
//
//	jobs, err := eng.Enqueue(ctx, 0, []string{`{"jobType":"export"}`},
//	    engine.WithGroupID(42),
//	)
//
//	j, err := eng.Dequeue(ctx, 0, workerID, 600)
//	// ... run ...
//	err = eng.Complete(ctx, j, false)
package engine
