package store

import "context"

// Limits every backend enforces before mutating anything.
const (
	// MaxValueSize is the largest entity value accepted, in bytes.
	MaxValueSize = 1 << 20

	// MaxBatch is the largest number of writes accepted by one Apply.
	MaxBatch = 100
)

// Entity is one row of the record store.
type Entity struct {
	Partition string
	Key       string

	// Token is the concurrency token of the stored version. It is set by
	// the store on every read and ignored on Insert.
	Token string

	Value []byte
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	cp := *e
	cp.Value = append([]byte(nil), e.Value...)
	return &cp
}

// Op is the kind of a single write.
type Op int

const (
	// OpInsert creates an entity and fails with KindConflict if the key
	// already exists.
	OpInsert Op = iota + 1

	// OpReplace overwrites an existing entity whose token equals
	// Entity.Token. It fails with KindConflict on a token mismatch and
	// with KindNotFound when the key is absent.
	OpReplace
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Write is one element of an atomic batch.
type Write struct {
	Op     Op
	Entity *Entity
}

// Insert is shorthand for an OpInsert write.
func Insert(e *Entity) Write { return Write{Op: OpInsert, Entity: e} }

// Replace is shorthand for an OpReplace write conditioned on e.Token.
func Replace(e *Entity) Write { return Write{Op: OpReplace, Entity: e} }

// Store is a partitioned record store.
type Store interface {
	// Get reads one entity. It returns an error of KindNotFound when the
	// key does not exist.
	Get(ctx context.Context, partition, key string) (*Entity, error)

	// Range returns the entities of partition with from <= key < to, in
	// ascending key order.
	Range(ctx context.Context, partition, from, to string) ([]*Entity, error)

	// Apply performs writes atomically and returns the new token of each
	// written entity, in order. Every write must target partition.
	Apply(ctx context.Context, partition string, writes []Write) ([]string, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store.
	Close() error
}

// Validate checks a batch against the limits and partition rules shared
// by every backend. A key may appear at most once per batch. Backends call
// it before touching storage.
func Validate(partition string, writes []Write) error {
	if len(writes) > MaxBatch {
		return &Error{Kind: KindTooLarge, Op: "apply", Index: -1}
	}
	seen := make(map[string]struct{}, len(writes))
	for i, w := range writes {
		if w.Entity == nil {
			return &Error{Kind: KindInvalid, Op: "apply", Index: i}
		}
		if w.Op != OpInsert && w.Op != OpReplace {
			return &Error{Kind: KindInvalid, Op: "apply", Index: i}
		}
		if w.Entity.Partition != partition {
			return &Error{Kind: KindInvalid, Op: "apply", Index: i}
		}
		if _, dup := seen[w.Entity.Key]; dup {
			return &Error{Kind: KindInvalid, Op: "apply", Index: i}
		}
		seen[w.Entity.Key] = struct{}{}
		if len(w.Entity.Value) > MaxValueSize {
			return &Error{Kind: KindTooLarge, Op: w.Op.String(), Index: i}
		}
	}
	return nil
}
