// Package badger implements store.Store on an embedded Badger database.
//
// Keys are "partition\x00rowkey", so a partition is a key prefix and Range
// is a seek plus a bounded forward scan. Values are msgpack envelopes that
// carry the concurrency token next to the entity bytes. Apply runs as one
// Badger transaction and is retried when Badger reports a commit conflict.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/lakequeue/store"
)

var _ store.Store = (*Store)(nil)

const (
	maxCommitRetries = 50
	commitRetryDelay = time.Millisecond
)

type envelope struct {
	Token string `msgpack:"t"`
	Value []byte `msgpack:"v"`
}

// Store is a Badger-backed record store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New opens (or creates) a database in dir.
func New(dir string, opts ...Option) (*Store, error) {
	return Open(badger.DefaultOptions(dir), opts...)
}

// Open opens a database with explicit Badger options. Badger's own logger
// is disabled.
func Open(bopts badger.Options, opts ...Option) (*Store, error) {
	bopts.Logger = nil
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("lakequeue/badger: open: %w", err)
	}
	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// OpenInMemory opens a database that lives only in memory.
func OpenInMemory(opts ...Option) (*Store, error) {
	return Open(badger.DefaultOptions("").WithInMemory(true), opts...)
}

// Ping reports whether the database is still open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("lakequeue/badger: database closed")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func entityKey(partition, key string) []byte {
	return []byte(partition + "\x00" + key)
}

// Get reads one entity.
func (s *Store) Get(_ context.Context, partition, key string) (*store.Entity, error) {
	var e *store.Entity
	err := s.db.View(func(txn *badger.Txn) error {
		env, err := read(txn, entityKey(partition, key))
		if err != nil {
			return err
		}
		if env == nil {
			return store.NotFound("get", -1)
		}
		e = &store.Entity{Partition: partition, Key: key, Token: env.Token, Value: env.Value}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Range scans the partition prefix from `from` up to, not including, `to`.
func (s *Store) Range(ctx context.Context, partition, from, to string) ([]*store.Entity, error) {
	prefix := []byte(partition + "\x00")
	end := entityKey(partition, to)

	var out []*store.Entity
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(entityKey(partition, from)); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			k := item.KeyCopy(nil)
			if bytes.Compare(k, end) >= 0 {
				break
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("lakequeue/badger: range value: %w", err)
			}
			var env envelope
			if err := msgpack.Unmarshal(raw, &env); err != nil {
				return fmt.Errorf("lakequeue/badger: decode %q: %w", k, err)
			}
			out = append(out, &store.Entity{
				Partition: partition,
				Key:       string(k[len(prefix):]),
				Token:     env.Token,
				Value:     env.Value,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Apply checks every precondition and writes the batch in one
// transaction.
func (s *Store) Apply(ctx context.Context, partition string, writes []store.Write) ([]string, error) {
	if err := store.Validate(partition, writes); err != nil {
		return nil, err
	}

	var tokens []string
	err := s.retryUpdate(ctx, func(txn *badger.Txn) error {
		tokens = make([]string, len(writes))
		for i, w := range writes {
			key := entityKey(partition, w.Entity.Key)
			cur, err := read(txn, key)
			if err != nil {
				return err
			}
			switch w.Op {
			case store.OpInsert:
				if cur != nil {
					return store.Conflict("insert", i)
				}
			case store.OpReplace:
				if cur == nil {
					return store.NotFound("replace", i)
				}
				if cur.Token != w.Entity.Token {
					return store.Conflict("replace", i)
				}
			}

			tokens[i] = uuid.NewString()
			raw, err := msgpack.Marshal(&envelope{Token: tokens[i], Value: w.Entity.Value})
			if err != nil {
				return fmt.Errorf("lakequeue/badger: encode: %w", err)
			}
			if err := txn.Set(key, raw); err != nil {
				if errors.Is(err, badger.ErrTxnTooBig) {
					return &store.Error{Kind: store.KindTooLarge, Op: w.Op.String(), Index: i, Err: err}
				}
				return fmt.Errorf("lakequeue/badger: set: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// retryUpdate re-runs fn while Badger reports a commit conflict.
func (s *Store) retryUpdate(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var lastErr error
	for attempt := range maxCommitRetries {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			time.Sleep(commitRetryDelay)
		}

		err := s.db.Update(fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		lastErr = err
		s.logger.Debug("badger commit conflict, retrying", "attempt", attempt+1)
	}
	return store.Transient("apply", fmt.Errorf("commit conflict after %d attempts: %w", maxCommitRetries, lastErr))
}

func read(txn *badger.Txn, key []byte) (*envelope, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lakequeue/badger: get: %w", err)
	}
	var env envelope
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &env)
	})
	if err != nil {
		return nil, fmt.Errorf("lakequeue/badger: decode: %w", err)
	}
	return &env, nil
}
