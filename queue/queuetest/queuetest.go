// Package queuetest is the conformance suite for queue.Queue backends.
// Backends must read time from the supplied clock so that lease expiry can
// be tested without sleeping.
package queuetest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/lakequeue/queue"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at start.
func NewClock(start time.Time) *Clock { return &Clock{now: start} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory returns an empty queue reading time from clock.
type Factory func(t *testing.T, clock *Clock) queue.Queue

// Run exercises every behavior the engine depends on.
func Run(t *testing.T, newQueue Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, queue.Queue, *Clock)
	}{
		{"ReceiveEmpty", testReceiveEmpty},
		{"SendReceive", testSendReceive},
		{"LeaseHidesMessage", testLeaseHides},
		{"LeaseLapse", testLeaseLapse},
		{"ExtendRotatesReceipt", testExtend},
		{"Delete", testDelete},
		{"QueuesAreIsolated", testIsolation},
		{"ConcurrentReceive", testConcurrentReceive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			tt.fn(t, newQueue(t, clock), clock)
		})
	}
}

func mustSend(t *testing.T, q queue.Queue, name, body string) *queue.Message {
	t.Helper()
	m, err := q.Send(context.Background(), name, []byte(body))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return m
}

func mustReceive(t *testing.T, q queue.Queue, name string, vis time.Duration) *queue.Message {
	t.Helper()
	m, err := q.Receive(context.Background(), name, vis)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if m == nil {
		t.Fatal("receive: queue unexpectedly empty")
	}
	return m
}

func expectEmpty(t *testing.T, q queue.Queue, name string) {
	t.Helper()
	m, err := q.Receive(context.Background(), name, time.Minute)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if m != nil {
		t.Fatalf("receive returned %s, want empty", m.ID)
	}
}

func testReceiveEmpty(t *testing.T, q queue.Queue, _ *Clock) {
	expectEmpty(t, q, "q")
}

func testSendReceive(t *testing.T, q queue.Queue, clock *Clock) {
	sent := mustSend(t, q, "q", "hello")
	if !strings.HasPrefix(sent.ID, "msg_") {
		t.Errorf("message id %q lacks msg_ prefix", sent.ID)
	}

	got := mustReceive(t, q, "q", 30*time.Second)
	if got.ID != sent.ID {
		t.Errorf("ID = %s, want %s", got.ID, sent.ID)
	}
	if string(got.Body) != "hello" {
		t.Errorf("Body = %q", got.Body)
	}
	if got.DequeueCount != 1 {
		t.Errorf("DequeueCount = %d, want 1", got.DequeueCount)
	}
	if !strings.HasPrefix(got.Receipt, "rcpt_") {
		t.Errorf("receipt %q lacks rcpt_ prefix", got.Receipt)
	}
	if want := clock.Now().Add(30 * time.Second); !got.NextVisibleAt.Equal(want) {
		t.Errorf("NextVisibleAt = %v, want %v", got.NextVisibleAt, want)
	}
}

func testLeaseHides(t *testing.T, q queue.Queue, clock *Clock) {
	mustSend(t, q, "q", "a")
	mustReceive(t, q, "q", 30*time.Second)

	clock.Advance(29 * time.Second)
	expectEmpty(t, q, "q")
}

func testLeaseLapse(t *testing.T, q queue.Queue, clock *Clock) {
	ctx := context.Background()
	mustSend(t, q, "q", "a")
	first := mustReceive(t, q, "q", 30*time.Second)

	clock.Advance(30 * time.Second)
	second := mustReceive(t, q, "q", 30*time.Second)
	if second.ID != first.ID {
		t.Fatalf("redelivered %s, want %s", second.ID, first.ID)
	}
	if second.DequeueCount != 2 {
		t.Errorf("DequeueCount = %d, want 2", second.DequeueCount)
	}
	if second.Receipt == first.Receipt {
		t.Error("receipt did not rotate on redelivery")
	}

	if err := q.Delete(ctx, "q", first.ID, first.Receipt); !errors.Is(err, queue.ErrMessageNotFound) {
		t.Errorf("delete with stale receipt: %v, want ErrMessageNotFound", err)
	}
	if err := q.Delete(ctx, "q", second.ID, second.Receipt); err != nil {
		t.Errorf("delete with current receipt: %v", err)
	}
}

func testExtend(t *testing.T, q queue.Queue, clock *Clock) {
	ctx := context.Background()
	mustSend(t, q, "q", "a")
	m := mustReceive(t, q, "q", 10*time.Second)

	clock.Advance(5 * time.Second)
	receipt, err := q.Extend(ctx, "q", m.ID, m.Receipt, time.Minute)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if receipt == m.Receipt || receipt == "" {
		t.Fatalf("extend returned receipt %q", receipt)
	}

	// Past the original lease, inside the extended one.
	clock.Advance(30 * time.Second)
	expectEmpty(t, q, "q")

	if _, err := q.Extend(ctx, "q", m.ID, m.Receipt, time.Minute); !errors.Is(err, queue.ErrMessageNotFound) {
		t.Errorf("extend with stale receipt: %v, want ErrMessageNotFound", err)
	}
	if _, err := q.Extend(ctx, "q", "msg_unknown", receipt, time.Minute); !errors.Is(err, queue.ErrMessageNotFound) {
		t.Errorf("extend unknown message: %v, want ErrMessageNotFound", err)
	}
}

func testDelete(t *testing.T, q queue.Queue, clock *Clock) {
	ctx := context.Background()
	mustSend(t, q, "q", "a")
	m := mustReceive(t, q, "q", 10*time.Second)

	if err := q.Delete(ctx, "q", m.ID, m.Receipt); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := q.Delete(ctx, "q", m.ID, m.Receipt); !errors.Is(err, queue.ErrMessageNotFound) {
		t.Errorf("second delete: %v, want ErrMessageNotFound", err)
	}
	if _, err := q.Extend(ctx, "q", m.ID, m.Receipt, time.Minute); !errors.Is(err, queue.ErrMessageNotFound) {
		t.Errorf("extend after delete: %v, want ErrMessageNotFound", err)
	}

	clock.Advance(time.Hour)
	expectEmpty(t, q, "q")
}

func testIsolation(t *testing.T, q queue.Queue, _ *Clock) {
	mustSend(t, q, "a", "for-a")
	expectEmpty(t, q, "b")

	got := mustReceive(t, q, "a", time.Minute)
	if string(got.Body) != "for-a" {
		t.Errorf("Body = %q", got.Body)
	}
}

func testConcurrentReceive(t *testing.T, q queue.Queue, _ *Clock) {
	mustSend(t, q, "q", "only")

	var (
		wg   sync.WaitGroup
		hits atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := q.Receive(context.Background(), "q", time.Minute)
			if err != nil {
				t.Errorf("receive: %v", err)
				return
			}
			if m != nil {
				hits.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Fatalf("%d receivers got the message, want 1", got)
	}
}
