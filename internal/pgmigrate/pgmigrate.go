// Package pgmigrate runs embedded goose migrations against PostgreSQL and
// classifies PostgreSQL error codes.
package pgmigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"github.com/pressly/goose/v3/lock"
)

// Up applies every pending migration in fsys through pool, recording
// versions in table.
func Up(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, table string, logger *slog.Logger) error {
	// The *sql.DB borrows connections from pool, which owns them.
	return UpDB(ctx, stdlib.OpenDBFromPool(pool), fsys, table, logger)
}

// UpDB is Up for a database/sql handle. Concurrent callers are serialized
// by a session advisory lock, so several instances may start against one
// database at once.
func UpDB(ctx context.Context, db *sql.DB, fsys fs.FS, table string, logger *slog.Logger) error {
	versions, err := database.NewStore(database.DialectPostgres, table)
	if err != nil {
		return fmt.Errorf("migration store %s: %w", table, err)
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}

	provider, err := goose.NewProvider("", db, fsys,
		goose.WithStore(versions),
		goose.WithSessionLocker(locker),
	)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("applied migration",
			"file", path.Base(r.Source.Path),
			"version", r.Source.Version,
			"table", table,
			"duration", r.Duration,
		)
	}
	return nil
}

// IsDuplicateKey reports a unique_violation (23505).
func IsDuplicateKey(err error) bool {
	return hasCode(err, "23505")
}

// IsRetryable reports serialization failures (40001) and deadlocks (40P01).
func IsRetryable(err error) bool {
	return hasCode(err, "40001") || hasCode(err, "40P01")
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
