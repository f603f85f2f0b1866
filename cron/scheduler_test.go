package cron_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/lakequeue/cron"
	"github.com/xraph/lakequeue/engine"
	"github.com/xraph/lakequeue/job"
	queuemem "github.com/xraph/lakequeue/queue/memory"
	"github.com/xraph/lakequeue/queue/queuetest"
	storemem "github.com/xraph/lakequeue/store/memory"
)

var (
	silent = slog.New(slog.NewTextHandler(io.Discard, nil))
	start  = time.Date(2024, 1, 1, 1, 59, 30, 0, time.UTC)
)

// stubEmitter records EmitCronFired calls.
type stubEmitter struct {
	mu    sync.Mutex
	calls []cronFiredCall
}

type cronFiredCall struct {
	EntryName string
	JobIDs    []int64
}

func (e *stubEmitter) EmitCronFired(_ context.Context, entryName string, jobs []*job.Job) {
	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	e.mu.Lock()
	e.calls = append(e.calls, cronFiredCall{EntryName: entryName, JobIDs: ids})
	e.mu.Unlock()
}

func (e *stubEmitter) getCalls() []cronFiredCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]cronFiredCall(nil), e.calls...)
}

func engineEnqueue(eng *engine.Engine) cron.EnqueueFunc {
	return func(ctx context.Context, qt job.QueueType, groupID int64, defs []string) ([]*job.Job, error) {
		return eng.Enqueue(ctx, qt, defs, engine.WithGroupID(groupID))
	}
}

func newEngine(clock *queuetest.Clock) *engine.Engine {
	return engine.New(storemem.New(), queuemem.New(queuemem.WithClock(clock.Now)),
		engine.WithLogger(silent),
		engine.WithClock(clock.Now),
	)
}

func nightly(t *testing.T) *cron.Entry {
	t.Helper()
	build, err := cron.Template(`{"jobType":"export","table":"Patient"}`, "")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	return &cron.Entry{
		Name:      "nightly",
		Schedule:  "0 2 * * *",
		QueueType: 3,
		GroupID:   11,
		Build:     build,
		Enabled:   true,
	}
}

func TestScheduler_FiresDueEntry(t *testing.T) {
	clock := queuetest.NewClock(start)
	eng := newEngine(clock)
	emitter := &stubEmitter{}
	s := cron.NewScheduler(engineEnqueue(eng), emitter, silent, cron.WithClock(clock.Now))

	if err := s.Add(nightly(t)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	entry, _ := s.Get("nightly")
	wantSlot := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)
	if entry.NextRunAt == nil || !entry.NextRunAt.Equal(wantSlot) {
		t.Fatalf("NextRunAt = %v, want %s", entry.NextRunAt, wantSlot)
	}
	if entry.ID.IsNil() {
		t.Error("entry was not given an id")
	}

	if n := s.RunDue(context.Background()); n != 0 {
		t.Fatalf("RunDue before the slot fired %d entries", n)
	}

	clock.Advance(time.Minute)
	if n := s.RunDue(context.Background()); n != 1 {
		t.Fatalf("RunDue fired %d entries, want 1", n)
	}

	jobs, err := eng.GetByGroupID(context.Background(), 3, 11, true)
	if err != nil {
		t.Fatalf("GetByGroupID: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	if !strings.Contains(jobs[0].Definition, `"scheduledTime":"2024-01-01T02:00:00Z"`) {
		t.Errorf("definition = %s, want the slot stamped in", jobs[0].Definition)
	}

	calls := emitter.getCalls()
	if len(calls) != 1 || calls[0].EntryName != "nightly" || len(calls[0].JobIDs) != 1 || calls[0].JobIDs[0] != jobs[0].ID {
		t.Errorf("emitter calls = %+v", calls)
	}

	entry, _ = s.Get("nightly")
	if entry.LastRunAt == nil || !entry.LastRunAt.Equal(wantSlot) {
		t.Errorf("LastRunAt = %v, want %s", entry.LastRunAt, wantSlot)
	}
	if !entry.NextRunAt.Equal(wantSlot.Add(24 * time.Hour)) {
		t.Errorf("NextRunAt = %s, want %s", entry.NextRunAt, wantSlot.Add(24*time.Hour))
	}

	// Same slot, nothing new.
	if n := s.RunDue(context.Background()); n != 0 {
		t.Errorf("second RunDue fired %d entries", n)
	}
}

func TestScheduler_InstancesShareSlots(t *testing.T) {
	clock := queuetest.NewClock(start)
	eng := newEngine(clock)

	a := cron.NewScheduler(engineEnqueue(eng), nil, silent, cron.WithClock(clock.Now))
	b := cron.NewScheduler(engineEnqueue(eng), nil, silent, cron.WithClock(clock.Now))
	for _, s := range []*cron.Scheduler{a, b} {
		if err := s.Add(nightly(t)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	clock.Advance(time.Minute)
	a.RunDue(context.Background())
	clock.Advance(10 * time.Second)
	b.RunDue(context.Background())

	jobs, err := eng.GetByGroupID(context.Background(), 3, 11, false)
	if err != nil {
		t.Fatalf("GetByGroupID: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("two instances created %d jobs for one slot, want 1", len(jobs))
	}
}

func TestScheduler_SkipsMissedSlots(t *testing.T) {
	clock := queuetest.NewClock(start)
	var (
		mu    sync.Mutex
		slots []string
	)
	enqueue := func(_ context.Context, _ job.QueueType, _ int64, defs []string) ([]*job.Job, error) {
		mu.Lock()
		slots = append(slots, defs...)
		mu.Unlock()
		return []*job.Job{{ID: 1}}, nil
	}
	s := cron.NewScheduler(enqueue, nil, silent, cron.WithClock(clock.Now))
	if err := s.Add(nightly(t)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clock.Advance(72*time.Hour + time.Minute)
	if n := s.RunDue(context.Background()); n != 1 {
		t.Fatalf("RunDue fired %d entries, want 1", n)
	}
	if len(slots) != 1 || !strings.Contains(slots[0], "2024-01-04T02:00:00Z") {
		t.Errorf("fired slots = %q, want only the latest", slots)
	}
}

func TestScheduler_EnqueueFailureRetriesSlot(t *testing.T) {
	clock := queuetest.NewClock(start)
	fail := true
	enqueue := func(context.Context, job.QueueType, int64, []string) ([]*job.Job, error) {
		if fail {
			return nil, errors.New("store down")
		}
		return []*job.Job{{ID: 9}}, nil
	}
	s := cron.NewScheduler(enqueue, nil, silent, cron.WithClock(clock.Now))
	if err := s.Add(nightly(t)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	clock.Advance(time.Minute)
	if n := s.RunDue(context.Background()); n != 0 {
		t.Fatalf("RunDue with failing enqueue fired %d", n)
	}
	fail = false
	if n := s.RunDue(context.Background()); n != 1 {
		t.Errorf("retry fired %d entries, want 1", n)
	}
}

func TestScheduler_DisabledEntry(t *testing.T) {
	clock := queuetest.NewClock(start)
	calls := 0
	enqueue := func(context.Context, job.QueueType, int64, []string) ([]*job.Job, error) {
		calls++
		return nil, nil
	}
	s := cron.NewScheduler(enqueue, nil, silent, cron.WithClock(clock.Now))
	if err := s.Add(nightly(t)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.SetEnabled("nightly", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	clock.Advance(time.Minute)
	s.RunDue(context.Background())
	if calls != 0 {
		t.Fatalf("disabled entry fired %d times", calls)
	}

	// Re-enabling schedules from now, not from the missed slot.
	if err := s.SetEnabled("nightly", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	entry, _ := s.Get("nightly")
	if want := time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC); !entry.NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %s, want %s", entry.NextRunAt, want)
	}
}

func TestScheduler_AddValidation(t *testing.T) {
	s := cron.NewScheduler(nil, nil, silent)
	build := func(time.Time) ([]string, error) { return []string{"x"}, nil }

	tests := []struct {
		name  string
		entry *cron.Entry
	}{
		{"no name", &cron.Entry{Schedule: "* * * * *", Build: build}},
		{"no build", &cron.Entry{Name: "a", Schedule: "* * * * *"}},
		{"bad schedule", &cron.Entry{Name: "a", Schedule: "not cron", Build: build}},
		{"negative group", &cron.Entry{Name: "a", Schedule: "* * * * *", Build: build, GroupID: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Add(tt.entry); err == nil {
				t.Error("Add succeeded")
			}
		})
	}

	if err := s.Add(&cron.Entry{Name: "dup", Schedule: "@every 1m", Build: build}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(&cron.Entry{Name: "dup", Schedule: "@every 1m", Build: build}); err == nil {
		t.Error("duplicate Add succeeded")
	}
	if err := s.Remove("dup"); err != nil {
		t.Errorf("Remove: %v", err)
	}
	if err := s.Remove("dup"); !errors.Is(err, cron.ErrEntryNotFound) {
		t.Errorf("Remove unknown = %v, want ErrEntryNotFound", err)
	}
	if _, err := s.Get("dup"); !errors.Is(err, cron.ErrEntryNotFound) {
		t.Errorf("Get unknown = %v, want ErrEntryNotFound", err)
	}
}

func TestRegister_TypedDefinition(t *testing.T) {
	clock := queuetest.NewClock(start)
	eng := newEngine(clock)
	s := cron.NewScheduler(engineEnqueue(eng), nil, silent, cron.WithClock(clock.Now))

	type export struct {
		JobType string    `json:"jobType"`
		Since   time.Time `json:"since"`
	}
	err := cron.Register(s, cron.Definition[export]{
		Name:     "hourly",
		Schedule: "0 * * * *",
		Build: func(slot time.Time) export {
			return export{JobType: "export", Since: slot.Add(-time.Hour)}
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	clock.Advance(time.Minute)
	if n := s.RunDue(context.Background()); n != 1 {
		t.Fatalf("RunDue fired %d entries, want 1", n)
	}
	jobs, err := eng.GetByGroupID(context.Background(), 0, 0, true)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("GetByGroupID = %v / %v", jobs, err)
	}
	if want := `{"jobType":"export","since":"2024-01-01T01:00:00Z"}`; jobs[0].Definition != want {
		t.Errorf("Definition = %s, want %s", jobs[0].Definition, want)
	}
}

func TestTemplate_RejectsNonObject(t *testing.T) {
	for _, def := range []string{"", "[]", "42", "null", "{"} {
		if _, err := cron.Template(def, ""); err == nil {
			t.Errorf("Template(%q) succeeded", def)
		}
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := cron.NewScheduler(nil, nil, silent, cron.WithTickInterval(10*time.Millisecond))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("double Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("double Stop: %v", err)
	}
}
