package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/ext"
	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/middleware"
)

// JobSource is the part of the engine a Host drives.
type JobSource interface {
	Dequeue(ctx context.Context, qt job.QueueType, workerID string, heartbeatTimeoutSeconds int64) (*job.Job, error)
	KeepAlive(ctx context.Context, j *job.Job) (bool, error)
	Complete(ctx context.Context, j *job.Job, requestCancellationOnFailure bool) error
}

// Outcome describes how Execute left a leased job.
type Outcome int

const (
	// OutcomeCompleted means the job was completed with a final status.
	OutcomeCompleted Outcome = iota
	// OutcomeDeclined means the factory declined the job and the lease
	// was left to lapse.
	OutcomeDeclined
	// OutcomeLeaseLost means another worker took the job over.
	OutcomeLeaseLost
	// OutcomeAbandoned means the body was interrupted by shutdown and the
	// lease was left to lapse.
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeDeclined:
		return "declined"
	case OutcomeLeaseLost:
		return "lease lost"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

var (
	errCancelRequested = errors.New("cancellation requested")
	errShutdown        = errors.New("host shutting down")
)

// Executor runs a single leased job: it builds the body, runs it through
// middleware beside a keep-alive ticker, then completes the job.
type Executor struct {
	source               JobSource
	factory              job.Factory
	extensions           *ext.Registry
	mw                   middleware.Middleware
	keepAlive            time.Duration
	cancelGroupOnFailure bool
	logger               *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	source JobSource,
	factory job.Factory,
	extensions *ext.Registry,
	keepAlive time.Duration,
	cancelGroupOnFailure bool,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		source:               source,
		factory:              factory,
		extensions:           extensions,
		mw:                   middleware.Chain(mws...),
		keepAlive:            keepAlive,
		cancelGroupOnFailure: cancelGroupOnFailure,
		logger:               logger,
	}
}

// Execute runs the leased job j. ctx bounds the body; cancelling it with
// a cause abandons the job without completing it.
//
// j is updated to the final record when the job completes. The returned
// error reports store failures; a failing body is not an error here, it
// completes the job as failed.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (Outcome, error) {
	body, err := e.factory.Create(j)
	if err != nil {
		j.Status = job.StatusFailed
		j.Result = err.Error()
		e.logger.Warn("job definition rejected",
			slog.Int64("job_id", j.ID),
			slog.Int("queue_type", int(j.QueueType)),
			slog.String("error", err.Error()),
		)
		return e.complete(j)
	}
	if body == nil {
		e.logger.Info("job declined",
			slog.Int64("job_id", j.ID),
			slog.Int("queue_type", int(j.QueueType)),
			slog.Int64("group_id", j.GroupID),
		)
		e.extensions.EmitJobDeclined(ctx, j)
		return OutcomeDeclined, nil
	}

	// The keep-alive goroutine owns lease until the body returns.
	lease := j.Clone()
	progress := &progressBox{}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stopKeepAlive := make(chan struct{})
	keepAliveDone := make(chan struct{})
	go func() {
		defer close(keepAliveDone)
		e.keepAliveLoop(runCtx, cancel, lease, progress, stopKeepAlive)
	}()

	result, bodyErr := e.run(runCtx, j, body, progress)

	close(stopKeepAlive)
	<-keepAliveDone

	cause := context.Cause(runCtx)
	switch {
	case errors.Is(cause, lakequeue.ErrLeaseLost):
		return OutcomeLeaseLost, nil
	case errors.Is(cause, errShutdown):
		e.logger.Info("job abandoned on shutdown",
			slog.Int64("job_id", j.ID),
			slog.Int("queue_type", int(j.QueueType)),
		)
		return OutcomeAbandoned, nil
	}

	// A body that stops because cancellation was requested is recorded
	// as cancelled, not failed.
	cancelled := errors.Is(cause, errCancelRequested) && errors.Is(bodyErr, context.Canceled)
	if bodyErr != nil && !cancelled {
		lease.Status = job.StatusFailed
		if result == "" {
			result = bodyErr.Error()
		}
	}
	if result != "" || bodyErr == nil {
		lease.Result = result
	}

	outcome, err := e.complete(lease)
	*j = *lease
	return outcome, err
}

// run invokes body through the middleware chain.
func (e *Executor) run(ctx context.Context, j *job.Job, body job.Body, progress *progressBox) (string, error) {
	var result string
	err := e.mw(ctx, j, func(ctx context.Context) error {
		var err error
		result, err = body(ctx, progress)
		return err
	})
	if result == "" && err == nil {
		result = progress.latest()
	}
	return result, err
}

func (e *Executor) keepAliveLoop(
	ctx context.Context,
	cancel context.CancelCauseFunc,
	lease *job.Job,
	progress *progressBox,
	stop <-chan struct{},
) {
	if e.keepAlive <= 0 {
		return
	}
	ticker := time.NewTicker(e.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r := progress.latest(); r != "" {
			lease.Result = r
		}
		// Renewal outlives the body's context so a cancelled body can
		// still be completed under a valid lease.
		cancelRequested, err := e.source.KeepAlive(context.WithoutCancel(ctx), lease)
		switch {
		case errors.Is(err, lakequeue.ErrLeaseLost):
			cancel(err)
			return
		case err != nil:
			e.logger.Warn("keep-alive failed",
				slog.Int64("job_id", lease.ID),
				slog.Int("queue_type", int(lease.QueueType)),
				slog.String("error", err.Error()),
			)
		case cancelRequested:
			e.logger.Info("job cancellation requested",
				slog.Int64("job_id", lease.ID),
				slog.Int("queue_type", int(lease.QueueType)),
			)
			cancel(errCancelRequested)
		}
	}
}

func (e *Executor) complete(j *job.Job) (Outcome, error) {
	err := e.source.Complete(context.Background(), j, e.cancelGroupOnFailure)
	if errors.Is(err, lakequeue.ErrLeaseLost) {
		return OutcomeLeaseLost, nil
	}
	if err != nil {
		e.logger.Error("failed to complete job",
			slog.Int64("job_id", j.ID),
			slog.Int("queue_type", int(j.QueueType)),
			slog.String("error", err.Error()),
		)
		return OutcomeCompleted, fmt.Errorf("lakequeue/worker: complete job %d: %w", j.ID, err)
	}
	return OutcomeCompleted, nil
}

// progressBox is the job.Progress handed to bodies.
type progressBox struct {
	mu     sync.Mutex
	result string
}

func (p *progressBox) Report(result string) {
	p.mu.Lock()
	p.result = result
	p.mu.Unlock()
}

func (p *progressBox) latest() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}
