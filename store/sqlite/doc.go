// Package sqlite implements store.Store on SQLite through database/sql and
// the pure-Go modernc.org/sqlite driver.
//
// The schema matches store/postgres: one table keyed by (partition_key,
// row_key) with integer version tokens. SQLite allows a single writer, so
// the store limits itself to one open connection and every Apply runs in
// one transaction on it.
//
//	s, err := sqlite.New(ctx, "file:lakequeue.db")
package sqlite
