package worker

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/backoff"
	"github.com/xraph/lakequeue/ext"
	"github.com/xraph/lakequeue/id"
	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/middleware"
)

// Defaults for a Host.
const (
	DefaultConcurrency      = 5
	DefaultHeartbeatTimeout = 600 * time.Second
	DefaultPollInterval     = time.Second
	DefaultShutdownTimeout  = 30 * time.Second
)

// QueueManager controls local rate limiting and concurrency. The host
// calls Acquire before each dequeue and AcquireGroup once the job's
// group is known; both are released after the job is handled.
//
// The group is only known after the lease is taken, so a job refused by
// AcquireGroup stays Running and unclaimable until its heartbeat timeout
// lapses. Keep the heartbeat timeout short when group limits are tight.
type QueueManager interface {
	Acquire(qt job.QueueType) bool
	Release(qt job.QueueType)
	AcquireGroup(qt job.QueueType, groupID int64) bool
	ReleaseGroup(qt job.QueueType, groupID int64)
}

// Host runs concurrent polling loops that lease jobs from a JobSource and
// execute them.
type Host struct {
	source               JobSource
	factory              job.Factory
	queueType            job.QueueType
	concurrency          int
	heartbeatTimeout     time.Duration
	keepAliveInterval    time.Duration
	pollInterval         time.Duration
	shutdownTimeout      time.Duration
	backoff              backoff.Strategy
	middleware           []middleware.Middleware
	queueManager         QueueManager
	extensions           *ext.Registry
	logger               *slog.Logger
	workerID             string
	cancelGroupOnFailure bool

	executor *Executor

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelCauseFunc
	activeMu   sync.Mutex
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithQueueType sets the queue type the host polls.
func WithQueueType(qt job.QueueType) HostOption {
	return func(h *Host) { h.queueType = qt }
}

// WithConcurrency sets the number of jobs the host runs at once.
func WithConcurrency(n int) HostOption {
	return func(h *Host) { h.concurrency = n }
}

// WithHeartbeatTimeout sets how long a lease survives without a
// keep-alive.
func WithHeartbeatTimeout(d time.Duration) HostOption {
	return func(h *Host) { h.heartbeatTimeout = d }
}

// WithKeepAliveInterval sets how often running jobs renew their lease.
// The default is a third of the heartbeat timeout.
func WithKeepAliveInterval(d time.Duration) HostOption {
	return func(h *Host) { h.keepAliveInterval = d }
}

// WithPollInterval caps the wait after an empty poll.
func WithPollInterval(d time.Duration) HostOption {
	return func(h *Host) { h.pollInterval = d }
}

// WithShutdownTimeout bounds how long Run waits for in-flight bodies
// once its context is cancelled.
func WithShutdownTimeout(d time.Duration) HostOption {
	return func(h *Host) { h.shutdownTimeout = d }
}

// WithBackoff sets the wait strategy for consecutive empty polls.
func WithBackoff(s backoff.Strategy) HostOption {
	return func(h *Host) { h.backoff = s }
}

// WithMiddleware appends body middleware. The first is outermost.
func WithMiddleware(mws ...middleware.Middleware) HostOption {
	return func(h *Host) { h.middleware = append(h.middleware, mws...) }
}

// WithQueueManager sets the local rate limiter. A job whose group is at
// capacity is left leased, not returned: it is retried only after the
// host's heartbeat timeout, so pair tight group limits with
// WithHeartbeatTimeout.
func WithQueueManager(m QueueManager) HostOption {
	return func(h *Host) { h.queueManager = m }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) HostOption {
	return func(h *Host) { h.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HostOption {
	return func(h *Host) { h.logger = l }
}

// WithWorkerID overrides the generated worker id.
func WithWorkerID(workerID string) HostOption {
	return func(h *Host) { h.workerID = workerID }
}

// WithCancelGroupOnFailure makes a failed job cancel the rest of its
// group.
func WithCancelGroupOnFailure(b bool) HostOption {
	return func(h *Host) { h.cancelGroupOnFailure = b }
}

// NewHost creates a Host that leases jobs from source and builds their
// bodies with factory.
func NewHost(source JobSource, factory job.Factory, opts ...HostOption) *Host {
	h := &Host{
		source:           source,
		factory:          factory,
		concurrency:      DefaultConcurrency,
		heartbeatTimeout: DefaultHeartbeatTimeout,
		pollInterval:     DefaultPollInterval,
		shutdownTimeout:  DefaultShutdownTimeout,
		logger:           slog.Default(),
		workerID:         id.NewWorkerID().String(),
		activeJobs:       make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.concurrency <= 0 {
		h.concurrency = DefaultConcurrency
	}
	if h.heartbeatTimeout < time.Second {
		h.heartbeatTimeout = time.Second
	}
	if h.keepAliveInterval <= 0 || h.keepAliveInterval >= h.heartbeatTimeout {
		h.keepAliveInterval = h.heartbeatTimeout / 3
	}
	if h.backoff == nil {
		h.backoff = backoff.NewExponentialWithJitter(h.pollInterval/10, h.pollInterval)
	}
	if h.extensions == nil {
		h.extensions = ext.NewRegistry(h.logger)
	}
	h.executor = NewExecutor(source, factory, h.extensions, h.keepAliveInterval,
		h.cancelGroupOnFailure, h.logger, h.middleware...)
	return h
}

// WorkerID returns the id the host dequeues under.
func (h *Host) WorkerID() string { return h.workerID }

// Run starts the host and blocks until ctx is cancelled, then stops it,
// waiting up to the shutdown timeout for in-flight bodies.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.shutdownTimeout)
	defer cancel()
	return h.Stop(stopCtx)
}

// Start launches the polling loops. It returns immediately.
func (h *Host) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil
	}
	if h.source == nil || h.factory == nil {
		return errors.New("lakequeue/worker: host needs a job source and a factory")
	}
	h.running = true
	h.stopCh = make(chan struct{})

	h.logger.Info("job host starting",
		slog.String("worker_id", h.workerID),
		slog.Int("queue_type", int(h.queueType)),
		slog.Int("concurrency", h.concurrency),
		slog.Duration("heartbeat_timeout", h.heartbeatTimeout),
	)

	for range h.concurrency {
		h.wg.Add(1)
		go h.pollLoop(h.stopCh)
	}
	return nil
}

// Stop signals the loops to stop and waits for in-flight jobs. If ctx
// ends first, running bodies are cancelled and their leases left to
// lapse.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	stop := h.stopCh
	h.mu.Unlock()

	h.logger.Info("job host stopping", slog.String("worker_id", h.workerID))
	close(stop)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("job host stopped gracefully")
	case <-ctx.Done():
		h.logger.Warn("job host shutdown timed out, cancelling active jobs")
		h.cancelActiveJobs()
		<-done
	}

	h.extensions.EmitShutdown(ctx)
	return nil
}

func (h *Host) pollLoop(stop <-chan struct{}) {
	defer h.wg.Done()

	secs := int64(h.heartbeatTimeout / time.Second)
	empty := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		if h.queueManager != nil && !h.queueManager.Acquire(h.queueType) {
			h.sleep(stop, h.pollInterval)
			continue
		}

		j, err := h.source.Dequeue(context.Background(), h.queueType, h.workerID, secs)
		switch {
		case errors.Is(err, lakequeue.ErrMessageDiscarded):
			h.release(nil)
			empty = 0
			continue
		case err != nil:
			h.release(nil)
			h.logger.Error("dequeue error",
				slog.String("worker_id", h.workerID),
				slog.String("error", err.Error()),
			)
			h.sleep(stop, h.pollInterval)
			continue
		case j == nil:
			h.release(nil)
			empty++
			h.logger.Debug("queue empty",
				slog.Int("queue_type", int(h.queueType)),
				slog.Int("attempt", empty),
			)
			h.sleep(stop, h.backoff.Delay(empty))
			continue
		}
		empty = 0

		if h.queueManager != nil && !h.queueManager.AcquireGroup(h.queueType, j.GroupID) {
			// The lease lapses and the job is picked up again later.
			h.logger.Debug("group at capacity, leaving job",
				slog.Int64("job_id", j.ID),
				slog.Int64("group_id", j.GroupID),
			)
			h.release(nil)
			continue
		}

		h.execute(j)
		h.release(j)
	}
}

func (h *Host) execute(j *job.Job) {
	key := strconv.FormatInt(j.ID, 10) + "@" + strconv.FormatInt(j.Version, 10)
	ctx, cancel := context.WithCancelCause(context.Background())
	h.trackJob(key, cancel)
	defer func() {
		h.untrackJob(key)
		cancel(nil)
	}()

	outcome, err := h.executor.Execute(ctx, j)
	if err != nil {
		h.logger.Error("job execution failed",
			slog.Int64("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Debug("job handled",
		slog.Int64("job_id", j.ID),
		slog.String("outcome", outcome.String()),
	)
}

// release returns the slots taken for one iteration. j is nil when no
// group slot was taken.
func (h *Host) release(j *job.Job) {
	if h.queueManager == nil {
		return
	}
	if j != nil {
		h.queueManager.ReleaseGroup(h.queueType, j.GroupID)
	}
	h.queueManager.Release(h.queueType)
}

func (h *Host) sleep(stop <-chan struct{}, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	}
}

func (h *Host) trackJob(key string, cancel context.CancelCauseFunc) {
	h.activeMu.Lock()
	h.activeJobs[key] = cancel
	h.activeMu.Unlock()
}

func (h *Host) untrackJob(key string) {
	h.activeMu.Lock()
	delete(h.activeJobs, key)
	h.activeMu.Unlock()
}

func (h *Host) cancelActiveJobs() {
	h.activeMu.Lock()
	defer h.activeMu.Unlock()
	for key, cancel := range h.activeJobs {
		h.logger.Warn("cancelling active job", slog.String("job", key))
		cancel(errShutdown)
	}
}
