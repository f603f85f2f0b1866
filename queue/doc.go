// Package queue defines the dispatch queue lakequeue uses to hand work to
// workers, and the Manager that throttles how fast a worker takes it.
//
// A dispatch queue offers at-least-once delivery with visibility-timeout
// leases. Receive hides a message for the requested visibility and hands
// out a receipt; the receipt is needed to extend the lease or delete the
// message, and it rotates on every Receive and Extend. A message whose
// lease lapses becomes visible again and its DequeueCount grows.
//
// # Available Backends
//
//   - queue/memory: in-process, with an injectable clock
//   - queue/redis: a sorted set of visibility deadlines plus one hash of
//     message fields per queue, driven by Lua scripts
//   - queue/postgres: a messages table claimed with FOR UPDATE SKIP LOCKED
//
// # Manager
//
// [Manager] enforces per-queue-type and per-group limits in the hosting
// loop. It uses a token-bucket rate limiter (golang.org/x/time/rate) and
// an active-count gate for concurrency limits:
//
//	m := queue.NewManager(queue.Config{QueueType: 1, RateLimit: 10, MaxConcurrency: 4})
//	if m.Acquire(1) {
//	    defer m.Release(1)
//	    // dequeue and run one job
//	}
//
// Queue types without a [Config] have no limits beyond the host's own
// concurrency.
package queue
