package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/lakequeue/id"
	"github.com/xraph/lakequeue/job"
)

// ErrEntryNotFound is returned for unknown entry names.
var ErrEntryNotFound = errors.New("lakequeue/cron: entry not found")

// EnqueueFunc is the callback the scheduler uses to enqueue jobs.
// This breaks the import cycle: the engine provides the implementation.
type EnqueueFunc func(ctx context.Context, qt job.QueueType, groupID int64, definitions []string) ([]*job.Job, error)

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string, jobs []*job.Job)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

type scheduled struct {
	entry    *Entry
	schedule cronlib.Schedule
}

// Scheduler fires cron entries on a tick loop.
//
// Every instance may run a scheduler for the same entries. A slot fired
// twice builds the same definitions, and the engine's idempotent enqueue
// collapses them into one job.
type Scheduler struct {
	enqueue EnqueueFunc
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time

	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*scheduled

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(enqueue EnqueueFunc, emitter Emitter, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		enqueue:      enqueue,
		emitter:      emitter,
		logger:       logger,
		now:          time.Now,
		tickInterval: time.Second,
		entries:      make(map[string]*scheduled),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers entry. Its next run is computed from the current time.
func (s *Scheduler) Add(entry *Entry) error {
	if entry.Name == "" {
		return errors.New("lakequeue/cron: entry needs a name")
	}
	if entry.Build == nil {
		return fmt.Errorf("lakequeue/cron: entry %q has no build function", entry.Name)
	}
	if entry.GroupID < 0 {
		return fmt.Errorf("lakequeue/cron: entry %q: negative group id %d", entry.Name, entry.GroupID)
	}
	sched, err := ParseSchedule(entry.Schedule)
	if err != nil {
		return fmt.Errorf("lakequeue/cron: entry %q: parse schedule %q: %w", entry.Name, entry.Schedule, err)
	}

	e := entry.clone()
	if e.ID.IsNil() {
		e.ID = id.NewEntryID()
	}
	next := sched.Next(s.now().UTC())
	e.NextRunAt = &next

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Name]; ok {
		return fmt.Errorf("lakequeue/cron: entry %q already registered", e.Name)
	}
	s.entries[e.Name] = &scheduled{entry: e, schedule: sched}

	s.logger.Info("cron entry registered",
		slog.String("cron_name", e.Name),
		slog.String("schedule", e.Schedule),
		slog.Time("next_run_at", next),
	)
	return nil
}

// Remove deletes the entry called name.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	delete(s.entries, name)
	return nil
}

// SetEnabled enables or disables the entry called name. Re-enabling
// schedules the next run from the current time.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	if enabled && !sc.entry.Enabled {
		next := sc.schedule.Next(s.now().UTC())
		sc.entry.NextRunAt = &next
	}
	sc.entry.Enabled = enabled
	return nil
}

// Get returns a copy of the entry called name.
func (s *Scheduler) Get(name string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	return sc.entry.clone(), nil
}

// Entries returns copies of all entries, ordered by name.
func (s *Scheduler) Entries() []*Entry {
	s.mu.Lock()
	out := make([]*Entry, 0, len(s.entries))
	for _, sc := range s.entries {
		out = append(out, sc.entry.clone())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches the tick goroutine. It returns immediately.
func (s *Scheduler) Start(_ context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.tickLoop(s.stopCh)
	s.logger.Info("cron scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine.
func (s *Scheduler) Stop(_ context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.RunDue(context.Background())
		}
	}
}

// RunDue fires every enabled entry whose next run has passed and returns
// how many fired.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now().UTC()

	s.mu.Lock()
	var due []*scheduled
	for _, sc := range s.entries {
		if sc.entry.Enabled && sc.entry.NextRunAt != nil && !sc.entry.NextRunAt.After(now) {
			due = append(due, sc)
		}
	}
	s.mu.Unlock()

	fired := 0
	for _, sc := range due {
		if s.fire(ctx, sc, now) {
			fired++
		}
	}
	return fired
}

func (s *Scheduler) fire(ctx context.Context, sc *scheduled, now time.Time) bool {
	s.mu.Lock()
	entry := sc.entry.clone()
	s.mu.Unlock()

	// Missed slots are skipped; only the latest due slot fires.
	slot := *entry.NextRunAt
	for n := sc.schedule.Next(slot); !n.IsZero() && !n.After(now); n = sc.schedule.Next(n) {
		slot = n
	}

	defs, err := entry.Build(slot)
	if err != nil {
		s.logger.Error("cron build error",
			slog.String("cron_name", entry.Name),
			slog.String("error", err.Error()),
		)
		s.advance(sc, nil, now)
		return false
	}

	jobs, err := s.enqueue(ctx, entry.QueueType, entry.GroupID, defs)
	if err != nil {
		// Leave NextRunAt alone so the slot is retried on the next tick.
		s.logger.Error("cron enqueue error",
			slog.String("cron_name", entry.Name),
			slog.Time("slot", slot),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.advance(sc, &slot, now)

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, entry.Name, jobs)
	}

	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	s.logger.Info("cron fired",
		slog.String("cron_name", entry.Name),
		slog.Time("slot", slot),
		slog.Any("job_ids", ids),
	)
	return true
}

func (s *Scheduler) advance(sc *scheduled, slot *time.Time, now time.Time) {
	next := sc.schedule.Next(now)
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot != nil {
		sc.entry.LastRunAt = slot
	}
	sc.entry.NextRunAt = &next
}
