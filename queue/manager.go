package queue

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/xraph/lakequeue/job"
)

// Config defines per-queue-type polling limits.
type Config struct {
	QueueType job.QueueType

	// MaxConcurrency limits how many jobs of this queue type the local
	// host runs at once. Zero means only the host's concurrency applies.
	MaxConcurrency int

	// RateLimit is the maximum sustained dequeues per second. Zero
	// disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int
}

type limitState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

func newLimitState(limit float64, burst, maxConcurrency int) *limitState {
	ls := &limitState{maxConcurrency: maxConcurrency}
	if limit > 0 {
		if burst <= 0 {
			burst = 1
		}
		ls.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return ls
}

func (ls *limitState) allow() bool {
	if ls.limiter != nil && !ls.limiter.Allow() {
		return false
	}
	return ls.maxConcurrency <= 0 || ls.active < ls.maxConcurrency
}

// Manager controls per-queue-type and per-group rate limiting and
// concurrency. It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	queues map[job.QueueType]*limitState
	groups map[groupKey]*limitState
}

// NewManager creates a Manager with the given queue configurations.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		queues: make(map[job.QueueType]*limitState, len(configs)),
		groups: make(map[groupKey]*limitState),
	}
	for _, cfg := range configs {
		m.queues[cfg.QueueType] = newLimitState(cfg.RateLimit, cfg.RateBurst, cfg.MaxConcurrency)
	}
	return m
}

// Acquire reports whether the host may dequeue one more job of qt, and if
// so counts it as active. The caller must call Release when the job is
// done or when the dequeue came back empty.
func (m *Manager) Acquire(qt job.QueueType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[qt]
	if qs == nil {
		return true
	}
	if !qs.allow() {
		return false
	}
	qs.active++
	return true
}

// Release undoes one successful Acquire.
func (m *Manager) Release(qt job.QueueType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qs := m.queues[qt]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// SetQueueConfig updates or creates a queue configuration, keeping the
// current active count.
func (m *Manager) SetQueueConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := newLimitState(cfg.RateLimit, cfg.RateBurst, cfg.MaxConcurrency)
	if existing := m.queues[cfg.QueueType]; existing != nil {
		qs.active = existing.active
	}
	m.queues[cfg.QueueType] = qs
}

// ActiveCount returns the number of active jobs for qt.
func (m *Manager) ActiveCount(qt job.QueueType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[qt]; qs != nil {
		return qs.active
	}
	return 0
}
