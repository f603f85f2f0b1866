package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/lakequeue/queue"
	"github.com/xraph/lakequeue/queue/memory"
	"github.com/xraph/lakequeue/queue/queuetest"
)

func TestConformance(t *testing.T) {
	queuetest.Run(t, func(_ *testing.T, clock *queuetest.Clock) queue.Queue {
		return memory.New(memory.WithClock(clock.Now))
	})
}

func TestReceiveOldestFirst(t *testing.T) {
	t.Parallel()
	clock := queuetest.NewClock(time.Unix(0, 0))
	q := memory.New(memory.WithClock(clock.Now))
	ctx := context.Background()

	for _, body := range []string{"first", "second", "third"} {
		if _, err := q.Send(ctx, "q", []byte(body)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	for _, want := range []string{"first", "second", "third"} {
		m, err := q.Receive(ctx, "q", time.Minute)
		if err != nil || m == nil {
			t.Fatalf("receive: %v / %v", m, err)
		}
		if string(m.Body) != want {
			t.Errorf("Body = %q, want %q", m.Body, want)
		}
	}
	if q.Len("q") != 3 {
		t.Errorf("Len = %d, want 3", q.Len("q"))
	}
}
