package sqlite_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/xraph/lakequeue/store"
	"github.com/xraph/lakequeue/store/sqlite"
	"github.com/xraph/lakequeue/store/storetest"
)

var dbSeq atomic.Int64

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", dbSeq.Add(1))
	s, err := sqlite.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newStore(t) })
}

func TestMigrateTwice(t *testing.T) {
	s := newStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	var count int
	err := s.DB().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM lakequeue_store_migrations WHERE version_id > 0 AND is_applied`).Scan(&count)
	if err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("recorded %d migrations, want 1", count)
	}
}
