package bunstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/lakequeue/internal/pgmigrate"
	"github.com/xraph/lakequeue/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ store.Store = (*Store)(nil)

type entityModel struct {
	bun.BaseModel `bun:"table:lakequeue_entities"`

	Partition string    `bun:"partition_key,pk"`
	Key       string    `bun:"row_key,pk"`
	Token     int64     `bun:"token,notnull"`
	Value     []byte    `bun:"value,notnull,type:bytea"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (m *entityModel) entity() *store.Entity {
	return &store.Entity{Partition: m.Partition, Key: m.Key, Token: formatToken(m.Token), Value: m.Value}
}

// Store is a Bun record store.
type Store struct {
	db     *bun.DB
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

// New creates a store on db. The caller owns the db lifecycle.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn through pgdriver. The store owns the connection
// and closes it on Close.
func Open(dsn string, opts ...Option) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	s := New(bun.NewDB(sqldb, pgdialect.New()), opts...)
	s.owned = true
	return s
}

// DB returns the underlying *bun.DB.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("lakequeue/bun: %w", err)
	}
	if err := pgmigrate.UpDB(ctx, s.db.DB, fsys, "lakequeue_store_migrations", s.logger); err != nil {
		return fmt.Errorf("lakequeue/bun: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// Get reads one entity.
func (s *Store) Get(ctx context.Context, partition, key string) (*store.Entity, error) {
	m := new(entityModel)
	err := s.db.NewSelect().Model(m).
		Where("partition_key = ?", partition).
		Where("row_key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NotFound("get", -1)
		}
		return nil, fmt.Errorf("lakequeue/bun: get: %w", err)
	}
	return m.entity(), nil
}

// Range returns entities with from <= row_key < to, in key order.
func (s *Store) Range(ctx context.Context, partition, from, to string) ([]*store.Entity, error) {
	var models []entityModel
	err := s.db.NewSelect().Model(&models).
		Where("partition_key = ?", partition).
		Where("row_key >= ?", from).
		Where("row_key < ?", to).
		OrderExpr("row_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("lakequeue/bun: range: %w", err)
	}
	out := make([]*store.Entity, len(models))
	for i := range models {
		out[i] = models[i].entity()
	}
	return out, nil
}

// Apply runs the batch in one transaction. A failing write rolls back the
// whole batch.
func (s *Store) Apply(ctx context.Context, partition string, writes []store.Write) ([]string, error) {
	if err := store.Validate(partition, writes); err != nil {
		return nil, err
	}

	tokens := make([]string, len(writes))
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i, w := range writes {
			token, err := applyOne(ctx, tx, w, i)
			if err != nil {
				return err
			}
			tokens[i] = formatToken(token)
		}
		return nil
	})
	if err != nil {
		var se *store.Error
		if errors.As(err, &se) {
			return nil, err
		}
		if isRetryable(err) {
			return nil, store.Transient("commit", err)
		}
		return nil, fmt.Errorf("lakequeue/bun: apply: %w", err)
	}
	return tokens, nil
}

func applyOne(ctx context.Context, tx bun.Tx, w store.Write, i int) (int64, error) {
	e := w.Entity
	value := e.Value
	if value == nil {
		value = []byte{}
	}

	if w.Op == store.OpInsert {
		m := &entityModel{Partition: e.Partition, Key: e.Key, Token: 1, Value: value}
		if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
			return 0, classify("insert", i, err)
		}
		return 1, nil
	}

	if expected, err := strconv.ParseInt(e.Token, 10, 64); err == nil {
		var token int64
		err := tx.NewUpdate().Model((*entityModel)(nil)).
			Set("value = ?", value).
			Set("token = token + 1").
			Set("updated_at = NOW()").
			Where("partition_key = ?", e.Partition).
			Where("row_key = ?", e.Key).
			Where("token = ?", expected).
			Returning("token").
			Scan(ctx, &token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, classify("replace", i, err)
		}
	}

	exists, err := tx.NewSelect().Model((*entityModel)(nil)).
		Where("partition_key = ?", e.Partition).
		Where("row_key = ?", e.Key).
		Exists(ctx)
	if err != nil {
		return 0, classify("replace", i, err)
	}
	if !exists {
		return 0, store.NotFound("replace", i)
	}
	return 0, store.Conflict("replace", i)
}

func classify(op string, i int, err error) error {
	switch {
	case hasCode(err, "23505"):
		return store.Conflict(op, i)
	case isRetryable(err):
		return &store.Error{Kind: store.KindTransient, Op: op, Index: i, Err: err}
	default:
		return fmt.Errorf("lakequeue/bun: %s: %w", op, err)
	}
}

// isRetryable reports serialization failures (40001) and deadlocks (40P01).
func isRetryable(err error) bool {
	return hasCode(err, "40001") || hasCode(err, "40P01")
}

func hasCode(err error, code string) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == code
	}
	return false
}

func formatToken(t int64) string { return strconv.FormatInt(t, 10) }
