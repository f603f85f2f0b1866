package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/lakequeue/engine"
	"github.com/xraph/lakequeue/job"
)

func TestScenario_GroupLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *harness) {
		ctx := context.Background()

		jobs := h.enqueue(t, []string{"jobA", "jobB"}, engine.WithGroupID(7))
		if jobs[0].ID == jobs[1].ID {
			t.Fatal("expected two distinct ids")
		}
		for _, j := range jobs {
			if j.GroupID != 7 {
				t.Errorf("job %d GroupID = %d, want 7", j.ID, j.GroupID)
			}
		}

		j := h.dequeue(t, 30)
		if j.ID != jobs[0].ID && j.ID != jobs[1].ID {
			t.Fatalf("dequeued unknown job %d", j.ID)
		}
		if j.Status != job.StatusRunning || j.Version == 0 {
			t.Errorf("dequeued job = %q/%d, want running with a version", j.Status, j.Version)
		}

		j.Result = "50%"
		if _, err := h.eng.KeepAlive(ctx, j); err != nil {
			t.Fatalf("KeepAlive: %v", err)
		}
		if got := h.get(t, j.ID); got.Status != job.StatusRunning || got.Result != "50%" {
			t.Errorf("after KeepAlive = %q/%q, want running/50%%", got.Status, got.Result)
		}

		j.Result = "100%"
		if err := h.eng.Complete(ctx, j, false); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if got := h.get(t, j.ID); got.Status != job.StatusCompleted || got.Result != "100%" {
			t.Errorf("after Complete = %q/%q, want completed/100%%", got.Status, got.Result)
		}

		// Only the other job is ever handed out again.
		other := h.dequeue(t, 30)
		if other.ID == j.ID {
			t.Fatalf("completed job %d dequeued again", j.ID)
		}
		h.clock.Advance(time.Minute)
		if err := h.eng.Complete(ctx, other, false); err != nil {
			t.Fatalf("Complete other: %v", err)
		}
		h.clock.Advance(time.Minute)
		h.expectEmpty(t)
	})
}

func TestScenario_ConcurrentEnqueueSameJob(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *harness) {
		var (
			wg  sync.WaitGroup
			ids [2]int64
		)
		for i := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				jobs, err := h.eng.Enqueue(context.Background(), 0, []string{"jobX"})
				if err != nil {
					t.Errorf("Enqueue: %v", err)
					return
				}
				ids[i] = jobs[0].ID
			}()
		}
		wg.Wait()

		if ids[0] != ids[1] {
			t.Fatalf("concurrent enqueues returned ids %d and %d", ids[0], ids[1])
		}
		all, err := h.eng.GetByGroupID(context.Background(), 0, 0, false)
		if err != nil {
			t.Fatalf("GetByGroupID: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("%d records exist, want 1", len(all))
		}
	}, engine.WithConflictRetries(100))
}

func TestScenario_LapsedLeaseIsReissued(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h *harness) {
		h.enqueue(t, []string{"jobA"})
		first := h.dequeue(t, 1)

		h.clock.Advance(2 * time.Second)
		second := h.dequeue(t, 1)

		if second.ID != first.ID {
			t.Errorf("ID = %d, want %d", second.ID, first.ID)
		}
		if second.Version <= first.Version {
			t.Errorf("Version = %d, want > %d", second.Version, first.Version)
		}
	})
}
