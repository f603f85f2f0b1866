package lakequeue

import "errors"

var (
	// Wiring errors.
	ErrNoStore = errors.New("lakequeue: no record store configured")
	ErrNoQueue = errors.New("lakequeue: no dispatch queue configured")

	// Not found errors.
	ErrJobNotFound = errors.New("lakequeue: job not found")

	// Capacity errors. Never retried.
	ErrCapacityExceeded = errors.New("lakequeue: record exceeds maximum payload size")
	ErrBatchTooLarge    = errors.New("lakequeue: too many definitions in one batch")

	// Lease errors.
	ErrLeaseLost = errors.New("lakequeue: lease lost")

	// ErrMessageDiscarded is returned by Dequeue when the received message was
	// stale, orphaned, or belongs to a job whose lease is still active. It is
	// a signal to poll again, not a failure.
	ErrMessageDiscarded = errors.New("lakequeue: message discarded")

	// ErrConcurrencyExhausted is returned when an optimistic write kept
	// losing races until the retry budget ran out.
	ErrConcurrencyExhausted = errors.New("lakequeue: optimistic concurrency retries exhausted")

	// Validation errors.
	ErrInvalidGroupID = errors.New("lakequeue: group id must not be negative")
)
