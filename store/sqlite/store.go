package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/xraph/lakequeue/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ store.Store = (*Store)(nil)

// Store is a SQLite record store.
type Store struct {
	db     *sql.DB
	owned  bool
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New opens dsn with the modernc driver and runs migrations. The store
// owns the handle and closes it on Close.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("lakequeue/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := NewFromDB(db, opts...)
	s.owned = true
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lakequeue/sqlite: pragma: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB wraps a handle the caller owns. Call Migrate before use.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies pending schema migrations with goose, recording
// versions in lakequeue_store_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("lakequeue/sqlite: %w", err)
	}
	versions, err := database.NewStore(database.DialectSQLite3, "lakequeue_store_migrations")
	if err != nil {
		return fmt.Errorf("lakequeue/sqlite: migration store: %w", err)
	}
	provider, err := goose.NewProvider("", s.db, fsys, goose.WithStore(versions))
	if err != nil {
		return fmt.Errorf("lakequeue/sqlite: load migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("lakequeue/sqlite: apply migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Debug("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the handle if the store opened it.
func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Get reads one entity.
func (s *Store) Get(ctx context.Context, partition, key string) (*store.Entity, error) {
	var (
		token int64
		value []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, value FROM lakequeue_entities
		WHERE partition_key = ? AND row_key = ?`,
		partition, key,
	).Scan(&token, &value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("get", -1)
		}
		return nil, classify("get", -1, err)
	}
	return &store.Entity{Partition: partition, Key: key, Token: formatToken(token), Value: value}, nil
}

// Range returns entities with from <= row_key < to, in key order.
func (s *Store) Range(ctx context.Context, partition, from, to string) ([]*store.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT row_key, token, value FROM lakequeue_entities
		WHERE partition_key = ? AND row_key >= ? AND row_key < ?
		ORDER BY row_key`,
		partition, from, to,
	)
	if err != nil {
		return nil, classify("range", -1, err)
	}
	defer rows.Close()

	var out []*store.Entity
	for rows.Next() {
		var (
			key   string
			token int64
			value []byte
		)
		if err := rows.Scan(&key, &token, &value); err != nil {
			return nil, fmt.Errorf("lakequeue/sqlite: range scan: %w", err)
		}
		out = append(out, &store.Entity{Partition: partition, Key: key, Token: formatToken(token), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("range", -1, err)
	}
	return out, nil
}

// Apply runs the batch in one transaction.
func (s *Store) Apply(ctx context.Context, partition string, writes []store.Write) ([]string, error) {
	if err := store.Validate(partition, writes); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin", -1, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	tokens := make([]string, len(writes))
	for i, w := range writes {
		token, err := applyOne(ctx, tx, w, i)
		if err != nil {
			return nil, err
		}
		tokens[i] = formatToken(token)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify("commit", -1, err)
	}
	return tokens, nil
}

func applyOne(ctx context.Context, tx *sql.Tx, w store.Write, i int) (int64, error) {
	e := w.Entity
	value := e.Value
	if value == nil {
		value = []byte{}
	}

	if w.Op == store.OpInsert {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lakequeue_entities (partition_key, row_key, token, value)
			VALUES (?, ?, 1, ?)`,
			e.Partition, e.Key, value,
		)
		if err != nil {
			return 0, classify("insert", i, err)
		}
		return 1, nil
	}

	var current int64
	err := tx.QueryRowContext(ctx, `
		SELECT token FROM lakequeue_entities WHERE partition_key = ? AND row_key = ?`,
		e.Partition, e.Key,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.NotFound("replace", i)
	}
	if err != nil {
		return 0, classify("replace", i, err)
	}
	if formatToken(current) != e.Token {
		return 0, store.Conflict("replace", i)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE lakequeue_entities
		SET value = ?, token = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE partition_key = ? AND row_key = ?`,
		value, current+1, e.Partition, e.Key,
	)
	if err != nil {
		return 0, classify("replace", i, err)
	}
	return current + 1, nil
}

func classify(op string, i int, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return store.Conflict(op, i)
	case strings.Contains(msg, "SQLITE_BUSY"), strings.Contains(msg, "database is locked"):
		return &store.Error{Kind: store.KindTransient, Op: op, Index: i, Err: err}
	default:
		return fmt.Errorf("lakequeue/sqlite: %s: %w", op, err)
	}
}

func formatToken(t int64) string { return strconv.FormatInt(t, 10) }
