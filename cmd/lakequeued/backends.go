package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/queue"
	queuemem "github.com/xraph/lakequeue/queue/memory"
	queuepg "github.com/xraph/lakequeue/queue/postgres"
	queueredis "github.com/xraph/lakequeue/queue/redis"
	"github.com/xraph/lakequeue/store"
	storebadger "github.com/xraph/lakequeue/store/badger"
	storebun "github.com/xraph/lakequeue/store/bun"
	storemem "github.com/xraph/lakequeue/store/memory"
	storepg "github.com/xraph/lakequeue/store/postgres"
	storeredis "github.com/xraph/lakequeue/store/redis"
	storesqlite "github.com/xraph/lakequeue/store/sqlite"
)

// backends owns the connections shared by the record store and the
// dispatch queue.
type backends struct {
	cfg    lakequeue.Config
	logger *slog.Logger

	redis   *goredis.Client
	pool    *pgxpool.Pool
	closers []func() error
}

func (b *backends) redisClient() *goredis.Client {
	if b.redis == nil {
		b.redis = goredis.NewClient(&goredis.Options{
			Addr:     b.cfg.RedisAddr,
			Password: b.cfg.RedisPassword,
		})
		b.closers = append(b.closers, b.redis.Close)
	}
	return b.redis
}

func (b *backends) pgPool(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	if b.cfg.PostgresDSN == "" {
		return nil, errors.New("LAKEQUEUE_POSTGRES_DSN is required for the postgres backend")
	}
	pool, err := pgxpool.New(ctx, b.cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b.pool = pool
	b.closers = append(b.closers, func() error { pool.Close(); return nil })
	return pool, nil
}

func (b *backends) openStore(ctx context.Context) (store.Store, error) {
	switch b.cfg.RecordStore {
	case "memory":
		return storemem.New(), nil
	case "redis":
		return storeredis.New(b.redisClient(),
			storeredis.WithKeyPrefix(b.cfg.QueuePrefix),
			storeredis.WithLogger(b.logger),
		), nil
	case "postgres":
		pool, err := b.pgPool(ctx)
		if err != nil {
			return nil, err
		}
		s := storepg.NewFromPool(pool, storepg.WithLogger(b.logger))
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "bun":
		if b.cfg.PostgresDSN == "" {
			return nil, errors.New("LAKEQUEUE_POSTGRES_DSN is required for the bun backend")
		}
		s := storebun.Open(b.cfg.PostgresDSN, storebun.WithLogger(b.logger))
		b.closers = append(b.closers, s.Close)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := storesqlite.New(ctx, b.cfg.SQLitePath, storesqlite.WithLogger(b.logger))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, s.Close)
		return s, nil
	case "badger":
		s, err := storebadger.New(b.cfg.BadgerPath, storebadger.WithLogger(b.logger))
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown record store %q", b.cfg.RecordStore)
	}
}

func (b *backends) openQueue(ctx context.Context) (queue.Queue, error) {
	switch b.cfg.DispatchQueue {
	case "memory":
		return queuemem.New(), nil
	case "redis":
		return queueredis.New(b.redisClient(),
			queueredis.WithKeyPrefix(b.cfg.QueuePrefix),
			queueredis.WithLogger(b.logger),
		), nil
	case "postgres":
		pool, err := b.pgPool(ctx)
		if err != nil {
			return nil, err
		}
		q := queuepg.New(pool, queuepg.WithLogger(b.logger))
		if err := q.Migrate(ctx); err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown dispatch queue %q", b.cfg.DispatchQueue)
	}
}

// Close releases connections in reverse order of opening.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}
