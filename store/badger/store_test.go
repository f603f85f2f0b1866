package badger_test

import (
	"context"
	"testing"

	"github.com/xraph/lakequeue/store"
	badgerstore "github.com/xraph/lakequeue/store/badger"
	"github.com/xraph/lakequeue/store/storetest"
)

func newStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	s, err := badgerstore.OpenInMemory()
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newStore(t) })
}

func TestPingAfterClose(t *testing.T) {
	s, err := badgerstore.OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping open db: %v", err)
	}
	_ = s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("ping on closed db succeeded")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := badgerstore.New(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Apply(ctx, "p", []store.Write{
		store.Insert(&store.Entity{Partition: "p", Key: "k", Value: []byte("kept")}),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = badgerstore.New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	e, err := s.Get(ctx, "p", "k")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(e.Value) != "kept" {
		t.Errorf("value = %q", e.Value)
	}
}
