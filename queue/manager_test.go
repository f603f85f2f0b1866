package queue_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/lakequeue/queue"
)

func TestManager_UnconfiguredQueueType(t *testing.T) {
	m := queue.NewManager(queue.Config{QueueType: 1, MaxConcurrency: 1})

	for range 10 {
		if !m.Acquire(2) {
			t.Fatal("unconfigured queue type should always allow Acquire")
		}
	}
	if m.ActiveCount(2) != 0 {
		t.Errorf("unconfigured queue type tracked %d active", m.ActiveCount(2))
	}
}

func TestManager_MaxConcurrency(t *testing.T) {
	m := queue.NewManager(queue.Config{QueueType: 1, MaxConcurrency: 2})

	if !m.Acquire(1) || !m.Acquire(1) {
		t.Fatal("first two Acquires should succeed")
	}
	if m.Acquire(1) {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	m.Release(1)
	if !m.Acquire(1) {
		t.Fatal("Acquire should succeed after Release")
	}
	if got := m.ActiveCount(1); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}
}

func TestManager_RateLimit(t *testing.T) {
	m := queue.NewManager(queue.Config{QueueType: 1, RateLimit: 1, RateBurst: 1})

	if !m.Acquire(1) {
		t.Fatal("first Acquire should succeed (within burst)")
	}
	m.Release(1)

	if m.Acquire(1) {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire(1) {
		t.Fatal("Acquire should succeed after token refill")
	}
}

func TestManager_RateBurst(t *testing.T) {
	m := queue.NewManager(queue.Config{QueueType: 1, RateLimit: 10, RateBurst: 3})

	for i := range 3 {
		if !m.Acquire(1) {
			t.Fatalf("Acquire %d should succeed (within burst)", i)
		}
		m.Release(1)
	}
}

func TestManager_SetQueueConfigKeepsActive(t *testing.T) {
	m := queue.NewManager(queue.Config{QueueType: 1, MaxConcurrency: 5})
	m.Acquire(1)
	m.Acquire(1)

	m.SetQueueConfig(queue.Config{QueueType: 1, MaxConcurrency: 2})
	if m.ActiveCount(1) != 2 {
		t.Fatalf("active count lost on reconfigure: %d", m.ActiveCount(1))
	}
	if m.Acquire(1) {
		t.Fatal("new limit of 2 should block a third job")
	}
}

func TestManager_GroupLimits(t *testing.T) {
	m := queue.NewManager()
	m.SetGroupConfig(queue.GroupConfig{QueueType: 1, GroupID: 7, MaxConcurrency: 1})

	if !m.AcquireGroup(1, 7) {
		t.Fatal("first job of group 7 should run")
	}
	if m.AcquireGroup(1, 7) {
		t.Fatal("second job of group 7 should wait")
	}
	if !m.AcquireGroup(1, 8) {
		t.Fatal("group 8 has no limit")
	}
	if !m.AcquireGroup(2, 7) {
		t.Fatal("group 7 of another queue type has no limit")
	}

	m.ReleaseGroup(1, 7)
	if m.GroupActiveCount(1, 7) != 0 {
		t.Fatalf("GroupActiveCount = %d, want 0", m.GroupActiveCount(1, 7))
	}
	if !m.AcquireGroup(1, 7) {
		t.Fatal("group 7 should run again after release")
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := queue.NewManager(queue.Config{QueueType: 1, MaxConcurrency: 5})
	m.SetGroupConfig(queue.GroupConfig{QueueType: 1, GroupID: 3, MaxConcurrency: 5})

	m.Release(1)
	m.ReleaseGroup(1, 3)
	if m.ActiveCount(1) != 0 || m.GroupActiveCount(1, 3) != 0 {
		t.Fatal("active counts should not go below 0")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := queue.NewManager(queue.Config{QueueType: 1, MaxConcurrency: 50})

	var (
		acquired atomic.Int64
		wg       sync.WaitGroup
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire(1) {
				acquired.Add(1)
				time.Sleep(time.Millisecond)
				m.Release(1)
			}
		}()
	}
	wg.Wait()

	if acquired.Load() == 0 {
		t.Fatal("expected some Acquires to succeed")
	}
	if m.ActiveCount(1) != 0 {
		t.Fatalf("expected 0 active after all goroutines, got %d", m.ActiveCount(1))
	}
}
