// Package memory implements store.Store with in-process maps. It is safe
// for concurrent use and intended for tests and single-process setups.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/xraph/lakequeue/store"
)

var _ store.Store = (*Store)(nil)

type row struct {
	token string
	value []byte
}

// Store is an in-memory record store.
type Store struct {
	mu         sync.RWMutex
	partitions map[string]map[string]row
}

// New returns an empty Store.
func New() *Store {
	return &Store{partitions: make(map[string]map[string]row)}
}

// Ping always succeeds.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *Store) Close() error { return nil }

// Get returns a copy of the stored entity.
func (m *Store) Get(_ context.Context, partition, key string) (*store.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.partitions[partition][key]
	if !ok {
		return nil, store.NotFound("get", -1)
	}
	return toEntity(partition, key, r), nil
}

// Range returns copies of the entities in [from, to), sorted by key.
func (m *Store) Range(_ context.Context, partition, from, to string) ([]*store.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.partitions[partition]
	keys := make([]string, 0, len(rows))
	for k := range rows {
		if k >= from && k < to {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]*store.Entity, len(keys))
	for i, k := range keys {
		out[i] = toEntity(partition, k, rows[k])
	}
	return out, nil
}

// Apply checks every precondition under the write lock before mutating,
// so a failing batch leaves the partition untouched.
func (m *Store) Apply(_ context.Context, partition string, writes []store.Write) ([]string, error) {
	if err := store.Validate(partition, writes); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.partitions[partition]
	for i, w := range writes {
		r, exists := rows[w.Entity.Key]
		switch w.Op {
		case store.OpInsert:
			if exists {
				return nil, store.Conflict("insert", i)
			}
		case store.OpReplace:
			if !exists {
				return nil, store.NotFound("replace", i)
			}
			if r.token != w.Entity.Token {
				return nil, store.Conflict("replace", i)
			}
		}
	}

	if rows == nil {
		rows = make(map[string]row)
		m.partitions[partition] = rows
	}
	tokens := make([]string, len(writes))
	for i, w := range writes {
		tokens[i] = uuid.NewString()
		rows[w.Entity.Key] = row{
			token: tokens[i],
			value: append([]byte(nil), w.Entity.Value...),
		}
	}
	return tokens, nil
}

// Len returns the number of stored entities across all partitions.
func (m *Store) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rows := range m.partitions {
		n += len(rows)
	}
	return n
}

func toEntity(partition, key string, r row) *store.Entity {
	return &store.Entity{
		Partition: partition,
		Key:       key,
		Token:     r.token,
		Value:     append([]byte(nil), r.value...),
	}
}
