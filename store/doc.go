// Package store defines the record store lakequeue keeps job records,
// locks, reverse indexes and id counters in.
//
// A record store is a partitioned key-value table. Every entity lives in
// exactly one partition and is addressed by its row key within it. The
// engine relies on three guarantees only:
//
//   - Apply is atomic within one partition: either every write in the
//     batch takes effect or none does.
//   - Every stored entity carries an opaque concurrency token that changes
//     on each write. A Replace succeeds only when the caller's token still
//     matches.
//   - Range returns the entities of one partition whose keys fall in
//     [from, to), in ascending key order.
//
// Backend failures are reported as *Error values with a closed set of
// kinds, so callers never inspect driver errors:
//
//	_, err := s.Apply(ctx, partition, writes)
//	switch {
//	case errors.Is(err, store.ErrConflict):
//	    // another writer got there first
//	case errors.Is(err, store.ErrTooLarge):
//	    // fatal for this payload
//	}
//
// # Available Backends
//
//   - store/memory: in-process maps, for development and tests
//   - store/redis: Redis hashes plus lexicographic sorted sets
//   - store/postgres: PostgreSQL via pgx/v5
//   - store/sqlite: SQLite via modernc.org/sqlite
//   - store/badger: embedded Badger database
//
// The storetest subpackage holds the conformance suite every backend runs.
package store
