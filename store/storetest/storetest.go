// Package storetest is the conformance suite for store.Store backends.
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) store.Store { return memory.New() })
//	}
package storetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/xraph/lakequeue/store"
)

// Factory returns a fresh, empty store for one subtest. Cleanup should be
// registered on t.
type Factory func(t *testing.T) store.Store

// Run exercises every behavior the engine depends on.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"GetMissing", testGetMissing},
		{"InsertAndGet", testInsertAndGet},
		{"InsertExisting", testInsertExisting},
		{"ReplaceToken", testReplaceToken},
		{"ReplaceMissing", testReplaceMissing},
		{"BatchIsAtomic", testBatchIsAtomic},
		{"RangeOrderAndBounds", testRange},
		{"PartitionsAreIsolated", testPartitions},
		{"ValueTooLarge", testValueTooLarge},
		{"BatchTooLarge", testBatchTooLarge},
		{"WrongPartition", testWrongPartition},
		{"ConcurrentReplace", testConcurrentReplace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func entity(partition, key, value string) *store.Entity {
	return &store.Entity{Partition: partition, Key: key, Value: []byte(value)}
}

func mustApply(t *testing.T, s store.Store, partition string, writes ...store.Write) []string {
	t.Helper()
	tokens, err := s.Apply(context.Background(), partition, writes)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(tokens) != len(writes) {
		t.Fatalf("apply returned %d tokens for %d writes", len(tokens), len(writes))
	}
	return tokens
}

func mustGet(t *testing.T, s store.Store, partition, key string) *store.Entity {
	t.Helper()
	e, err := s.Get(context.Background(), partition, key)
	if err != nil {
		t.Fatalf("get %s/%s: %v", partition, key, err)
	}
	return e
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), "p", "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func testInsertAndGet(t *testing.T, s store.Store) {
	tokens := mustApply(t, s, "p", store.Insert(entity("p", "k", "v1")))
	if tokens[0] == "" {
		t.Fatal("insert returned an empty token")
	}

	e := mustGet(t, s, "p", "k")
	if e.Partition != "p" || e.Key != "k" {
		t.Errorf("address = %s/%s", e.Partition, e.Key)
	}
	if !bytes.Equal(e.Value, []byte("v1")) {
		t.Errorf("value = %q", e.Value)
	}
	if e.Token != tokens[0] {
		t.Errorf("token = %q, want %q", e.Token, tokens[0])
	}
}

func testInsertExisting(t *testing.T, s store.Store) {
	mustApply(t, s, "p", store.Insert(entity("p", "k", "v1")))

	_, err := s.Apply(context.Background(), "p", []store.Write{store.Insert(entity("p", "k", "v2"))})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if got := mustGet(t, s, "p", "k").Value; string(got) != "v1" {
		t.Errorf("value overwritten: %q", got)
	}
}

func testReplaceToken(t *testing.T, s store.Store) {
	tokens := mustApply(t, s, "p", store.Insert(entity("p", "k", "v1")))

	stale := entity("p", "k", "stale")
	stale.Token = "not-the-token"
	_, err := s.Apply(context.Background(), "p", []store.Write{store.Replace(stale)})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("stale replace err = %v, want ErrConflict", err)
	}

	fresh := entity("p", "k", "v2")
	fresh.Token = tokens[0]
	next := mustApply(t, s, "p", store.Replace(fresh))
	if next[0] == tokens[0] {
		t.Error("replace did not rotate the token")
	}
	if got := mustGet(t, s, "p", "k"); string(got.Value) != "v2" || got.Token != next[0] {
		t.Errorf("after replace: %q / %q", got.Value, got.Token)
	}

	// The first token is now stale too.
	_, err = s.Apply(context.Background(), "p", []store.Write{store.Replace(fresh)})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second replace err = %v, want ErrConflict", err)
	}
}

func testReplaceMissing(t *testing.T, s store.Store) {
	e := entity("p", "ghost", "v")
	e.Token = "t"
	_, err := s.Apply(context.Background(), "p", []store.Write{store.Replace(e)})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func testBatchIsAtomic(t *testing.T, s store.Store) {
	mustApply(t, s, "p", store.Insert(entity("p", "existing", "v")))

	_, err := s.Apply(context.Background(), "p", []store.Write{
		store.Insert(entity("p", "a", "new")),
		store.Insert(entity("p", "existing", "dup")),
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	var se *store.Error
	if errors.As(err, &se) && se.Index != 1 {
		t.Errorf("Index = %d, want 1", se.Index)
	}
	if _, err := s.Get(context.Background(), "p", "a"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("partial batch applied: get a = %v", err)
	}
}

func testRange(t *testing.T, s store.Store) {
	mustApply(t, s, "p",
		store.Insert(entity("p", "00000000000000000002_00000000000000000001", "g2")),
		store.Insert(entity("p", "00000000000000000001_00000000000000000002", "b")),
		store.Insert(entity("p", "00000000000000000001_00000000000000000001", "a")),
		store.Insert(entity("p", "lock_abc", "lock")),
	)

	got, err := s.Range(context.Background(), "p",
		"00000000000000000001", "00000000000000000002")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	want := []string{"a", "b"}
	if len(got) != len(want) {
		t.Fatalf("range returned %d entities, want %d", len(got), len(want))
	}
	for i, e := range got {
		if string(e.Value) != want[i] {
			t.Errorf("range[%d] = %q, want %q", i, e.Value, want[i])
		}
		if e.Token == "" {
			t.Errorf("range[%d] has no token", i)
		}
	}

	empty, err := s.Range(context.Background(), "other", "0", "9")
	if err != nil {
		t.Fatalf("range empty partition: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty partition returned %d entities", len(empty))
	}
}

func testPartitions(t *testing.T, s store.Store) {
	mustApply(t, s, "p1", store.Insert(entity("p1", "k", "one")))
	mustApply(t, s, "p2", store.Insert(entity("p2", "k", "two")))

	if got := mustGet(t, s, "p1", "k").Value; string(got) != "one" {
		t.Errorf("p1 = %q", got)
	}
	if got := mustGet(t, s, "p2", "k").Value; string(got) != "two" {
		t.Errorf("p2 = %q", got)
	}
}

func testValueTooLarge(t *testing.T, s store.Store) {
	big := &store.Entity{Partition: "p", Key: "big", Value: make([]byte, store.MaxValueSize+1)}
	_, err := s.Apply(context.Background(), "p", []store.Write{store.Insert(big)})
	if !errors.Is(err, store.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func testBatchTooLarge(t *testing.T, s store.Store) {
	writes := make([]store.Write, store.MaxBatch+1)
	for i := range writes {
		writes[i] = store.Insert(entity("p", fmt.Sprintf("k%03d", i), "v"))
	}
	_, err := s.Apply(context.Background(), "p", writes)
	if !errors.Is(err, store.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if _, err := s.Get(context.Background(), "p", "k000"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("oversized batch partially applied: %v", err)
	}
}

func testWrongPartition(t *testing.T, s store.Store) {
	_, err := s.Apply(context.Background(), "p", []store.Write{store.Insert(entity("q", "k", "v"))})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func testConcurrentReplace(t *testing.T, s store.Store) {
	tokens := mustApply(t, s, "p", store.Insert(entity("p", "k", "v0")))

	const writers = 8
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := entity("p", "k", fmt.Sprintf("w%d", i))
			e.Token = tokens[0]
			_, err := s.Apply(context.Background(), "p", []store.Write{store.Replace(e)})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrTransient):
			default:
				t.Errorf("writer %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("%d writers won the same token, want exactly 1", got)
	}
}
