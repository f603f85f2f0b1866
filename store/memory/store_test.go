package memory_test

import (
	"context"
	"testing"

	"github.com/xraph/lakequeue/store"
	"github.com/xraph/lakequeue/store/memory"
	"github.com/xraph/lakequeue/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	if _, err := s.Apply(ctx, "p", []store.Write{
		store.Insert(&store.Entity{Partition: "p", Key: "k", Value: []byte("abc")}),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	e, err := s.Get(ctx, "p", "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	e.Value[0] = 'X'

	again, _ := s.Get(ctx, "p", "k")
	if string(again.Value) != "abc" {
		t.Errorf("caller mutation leaked into store: %q", again.Value)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
