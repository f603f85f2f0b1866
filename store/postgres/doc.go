// Package postgres implements store.Store on PostgreSQL using pgx/v5.
//
// All entities live in one table keyed by (partition_key, row_key). Row
// keys use the "C" collation so Range sees the same byte order as every
// other backend. Tokens are per-row integer versions; Apply runs in a
// single transaction.
package postgres
