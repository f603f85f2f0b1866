// Package postgres implements queue.Queue on PostgreSQL. Receive claims the
// next visible row with FOR UPDATE SKIP LOCKED, so concurrent receivers
// never block on each other or take the same message.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/lakequeue/id"
	"github.com/xraph/lakequeue/internal/pgmigrate"
	"github.com/xraph/lakequeue/queue"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ queue.Queue = (*Queue)(nil)

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue is a PostgreSQL dispatch queue. The caller owns the pool.
type Queue struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	logger *slog.Logger
}

// New creates a queue on pool.
func New(pool *pgxpool.Pool, opts ...Option) *Queue {
	q := &Queue{pool: pool, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Migrate creates the messages table.
func (q *Queue) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("lakequeue/postgres: %w", err)
	}
	if err := pgmigrate.Up(ctx, q.pool, fsys, "lakequeue_queue_migrations", q.logger); err != nil {
		return fmt.Errorf("lakequeue/postgres: %w", err)
	}
	return nil
}

// Send inserts a visible message.
func (q *Queue) Send(ctx context.Context, name string, body []byte) (*queue.Message, error) {
	now := q.now().UTC().Truncate(time.Microsecond)
	m := &queue.Message{
		ID:            id.NewMessageID().String(),
		Body:          append([]byte{}, body...),
		InsertedAt:    now,
		NextVisibleAt: now,
	}
	_, err := q.pool.Exec(ctx, `
		INSERT INTO lakequeue_messages (id, queue, body, inserted_at, next_visible_at)
		VALUES ($1, $2, $3, $4, $4)`,
		m.ID, name, m.Body, now,
	)
	if err != nil {
		return nil, fmt.Errorf("lakequeue/postgres: send: %w", err)
	}
	return m, nil
}

// Receive leases the visible message with the earliest deadline.
func (q *Queue) Receive(ctx context.Context, name string, visibility time.Duration) (*queue.Message, error) {
	now := q.now().UTC().Truncate(time.Microsecond)
	m := &queue.Message{Receipt: id.NewReceipt().String()}

	err := q.pool.QueryRow(ctx, `
		UPDATE lakequeue_messages
		SET receipt = $3, dequeue_count = dequeue_count + 1, next_visible_at = $4
		WHERE id = (
			SELECT id FROM lakequeue_messages
			WHERE queue = $1 AND next_visible_at <= $2
			ORDER BY next_visible_at, inserted_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, body, dequeue_count, inserted_at, next_visible_at`,
		name, now, m.Receipt, now.Add(visibility),
	).Scan(&m.ID, &m.Body, &m.DequeueCount, &m.InsertedAt, &m.NextVisibleAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lakequeue/postgres: receive: %w", err)
	}
	m.InsertedAt = m.InsertedAt.UTC()
	m.NextVisibleAt = m.NextVisibleAt.UTC()
	return m, nil
}

// Extend renews the lease held by receipt.
func (q *Queue) Extend(ctx context.Context, name, msgID, receipt string, visibility time.Duration) (string, error) {
	next := q.now().UTC().Add(visibility)
	newReceipt := id.NewReceipt().String()

	tag, err := q.pool.Exec(ctx, `
		UPDATE lakequeue_messages SET receipt = $4, next_visible_at = $5
		WHERE queue = $1 AND id = $2 AND receipt = $3`,
		name, msgID, receipt, newReceipt, next,
	)
	if err != nil {
		return "", fmt.Errorf("lakequeue/postgres: extend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", queue.ErrMessageNotFound
	}
	return newReceipt, nil
}

// Delete removes the message held by receipt.
func (q *Queue) Delete(ctx context.Context, name, msgID, receipt string) error {
	tag, err := q.pool.Exec(ctx, `
		DELETE FROM lakequeue_messages WHERE queue = $1 AND id = $2 AND receipt = $3`,
		name, msgID, receipt,
	)
	if err != nil {
		return fmt.Errorf("lakequeue/postgres: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return queue.ErrMessageNotFound
	}
	return nil
}
