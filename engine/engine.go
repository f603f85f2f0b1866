package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/backoff"
	"github.com/xraph/lakequeue/ext"
	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/queue"
	"github.com/xraph/lakequeue/store"
)

// Defaults.
const (
	DefaultMaxBatch          = 50
	DefaultConflictRetries   = 10
	DefaultLookupConcurrency = 5
	DefaultVisibility        = 30 * time.Second
	DefaultQueuePrefix       = "lakequeue"
)

// Engine is the job queue client. It keeps job records in a store.Store
// and dispatch messages in a queue.Queue. Engines hold no state of their
// own beyond configuration, so any number of them may share backends.
type Engine struct {
	records  store.Store
	messages queue.Queue

	codec      Codec
	identifier job.Identifier
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time

	queuePrefix       string
	maxBatch          int
	conflictRetries   int
	conflictBackoff   backoff.Strategy
	lookupConcurrency int
	defaultVisibility time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCodec sets the record serialization strategy.
func WithCodec(c Codec) Option {
	return func(e *Engine) { e.codec = c }
}

// WithIdentifier sets how job definitions are deduplicated.
func WithIdentifier(id job.Identifier) Option {
	return func(e *Engine) { e.identifier = id }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) Option {
	return func(e *Engine) { e.extensions = r }
}

// WithQueuePrefix sets the dispatch queue name prefix.
func WithQueuePrefix(prefix string) Option {
	return func(e *Engine) { e.queuePrefix = prefix }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxBatch sets the maximum number of definitions per Enqueue.
func WithMaxBatch(n int) Option {
	return func(e *Engine) { e.maxBatch = n }
}

// WithConflictRetries bounds the optimistic retry loops.
func WithConflictRetries(n int) Option {
	return func(e *Engine) { e.conflictRetries = n }
}

// WithBackoff sets the delay between optimistic retries.
func WithBackoff(s backoff.Strategy) Option {
	return func(e *Engine) { e.conflictBackoff = s }
}

// WithLookupConcurrency bounds the parallel reads of GetByIDs.
func WithLookupConcurrency(n int) Option {
	return func(e *Engine) { e.lookupConcurrency = n }
}

// WithDefaultVisibility sets the lease used when Dequeue is called without
// a heartbeat timeout.
func WithDefaultVisibility(d time.Duration) Option {
	return func(e *Engine) { e.defaultVisibility = d }
}

// New creates an Engine over the given backends.
func New(records store.Store, messages queue.Queue, opts ...Option) *Engine {
	e := &Engine{
		records:           records,
		messages:          messages,
		codec:             SchemaCodec{},
		identifier:        job.DefaultIdentifier(),
		logger:            slog.Default(),
		now:               time.Now,
		queuePrefix:       DefaultQueuePrefix,
		maxBatch:          DefaultMaxBatch,
		conflictRetries:   DefaultConflictRetries,
		conflictBackoff:   backoff.DefaultConflict(),
		lookupConcurrency: DefaultLookupConcurrency,
		defaultVisibility: DefaultVisibility,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.extensions == nil {
		e.extensions = ext.NewRegistry(e.logger)
	}
	if e.maxBatch > store.MaxBatch/2 {
		// Every new job takes two writes (record and lock) in one batch.
		e.maxBatch = store.MaxBatch / 2
	}
	return e
}

// Extensions returns the hook registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// QueueName returns the dispatch queue name for queueType.
func (e *Engine) QueueName(qt job.QueueType) string {
	return fmt.Sprintf("%s-%03d", e.queuePrefix, qt)
}

// Ping checks that the record store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.records.Ping(ctx); err != nil {
		return fmt.Errorf("lakequeue/engine: ping: %w", err)
	}
	return nil
}

func (e *Engine) ready() error {
	if e.records == nil {
		return lakequeue.ErrNoStore
	}
	if e.messages == nil {
		return lakequeue.ErrNoQueue
	}
	return nil
}

// storeErr wraps a store error, translating TooLarge into
// lakequeue.ErrCapacityExceeded.
func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrTooLarge) {
		return fmt.Errorf("lakequeue/engine: %s: %w: %w", op, lakequeue.ErrCapacityExceeded, err)
	}
	return fmt.Errorf("lakequeue/engine: %s: %w", op, err)
}

// retryable reports whether an optimistic write may be retried after a
// fresh read.
func retryable(err error) bool {
	return errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrTransient)
}

func (e *Engine) pause(ctx context.Context, attempt int) error {
	return backoff.Sleep(ctx, e.conflictBackoff.Delay(attempt))
}

func (e *Engine) visibility(heartbeatTimeoutSeconds int64) time.Duration {
	if heartbeatTimeoutSeconds <= 0 {
		return e.defaultVisibility
	}
	return time.Duration(heartbeatTimeoutSeconds) * time.Second
}
