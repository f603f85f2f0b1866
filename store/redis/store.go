package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/lakequeue/store"
)

var _ store.Store = (*Store)(nil)

// applyScript checks all preconditions first, then writes. Layout:
// KEYS[1..n] entity hashes, KEYS[n+1] the partition index.
// ARGV[1] = n, then per write: op, expected token, new token, value, row key.
var applyScript = goredis.NewScript(`
local n = tonumber(ARGV[1])
for i = 1, n do
  local base = 1 + (i - 1) * 5
  local cur = redis.call('HGET', KEYS[i], 'token')
  if ARGV[base + 1] == 'insert' then
    if cur then return {'conflict', i - 1} end
  else
    if not cur then return {'notfound', i - 1} end
    if cur ~= ARGV[base + 2] then return {'conflict', i - 1} end
  end
end
for i = 1, n do
  local base = 1 + (i - 1) * 5
  redis.call('HSET', KEYS[i], 'token', ARGV[base + 3], 'value', ARGV[base + 4])
  redis.call('ZADD', KEYS[n + 1], 0, ARGV[base + 5])
end
return {'ok', -1}
`)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeyPrefix namespaces every key. The default is "lakequeue:".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	prefix string
	logger *slog.Logger
}

// New creates a Redis-backed record store. The caller owns the client.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultKeyPrefix, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// Get reads one entity.
func (s *Store) Get(ctx context.Context, partition, key string) (*store.Entity, error) {
	vals, err := s.client.HMGet(ctx, s.entityKey(partition, key), "value", "token").Result()
	if err != nil {
		return nil, fmt.Errorf("lakequeue/redis: get: %w", err)
	}
	e, ok := toEntity(partition, key, vals)
	if !ok {
		return nil, store.NotFound("get", -1)
	}
	return e, nil
}

// Range lists row keys from the partition index, then reads each hash in
// one pipeline.
func (s *Store) Range(ctx context.Context, partition, from, to string) ([]*store.Entity, error) {
	keys, err := s.client.ZRangeByLex(ctx, s.indexKey(partition), &goredis.ZRangeBy{
		Min: "[" + from,
		Max: "(" + to,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("lakequeue/redis: range index: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.SliceCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HMGet(ctx, s.entityKey(partition, k), "value", "token")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("lakequeue/redis: range read: %w", err)
	}

	out := make([]*store.Entity, 0, len(keys))
	for i, cmd := range cmds {
		if e, ok := toEntity(partition, keys[i], cmd.Val()); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Apply runs the batch as a single script.
func (s *Store) Apply(ctx context.Context, partition string, writes []store.Write) ([]string, error) {
	if err := store.Validate(partition, writes); err != nil {
		return nil, err
	}
	if len(writes) == 0 {
		return []string{}, nil
	}

	keys := make([]string, 0, len(writes)+1)
	args := make([]any, 0, 1+len(writes)*5)
	args = append(args, len(writes))
	tokens := make([]string, len(writes))
	for i, w := range writes {
		tokens[i] = uuid.NewString()
		keys = append(keys, s.entityKey(partition, w.Entity.Key))
		args = append(args, w.Op.String(), w.Entity.Token, tokens[i], w.Entity.Value, w.Entity.Key)
	}
	keys = append(keys, s.indexKey(partition))

	res, err := applyScript.Run(ctx, s.client, keys, args...).Slice()
	if err != nil {
		return nil, fmt.Errorf("lakequeue/redis: apply: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("lakequeue/redis: apply: unexpected reply %v", res)
	}
	status, _ := res[0].(string)
	idx, _ := res[1].(int64)
	switch status {
	case "ok":
		return tokens, nil
	case "conflict":
		return nil, store.Conflict(writes[idx].Op.String(), int(idx))
	case "notfound":
		return nil, store.NotFound(writes[idx].Op.String(), int(idx))
	default:
		return nil, fmt.Errorf("lakequeue/redis: apply: unexpected status %q", status)
	}
}

func toEntity(partition, key string, vals []any) (*store.Entity, bool) {
	if len(vals) != 2 || vals[1] == nil {
		return nil, false
	}
	token, ok := vals[1].(string)
	if !ok {
		return nil, false
	}
	value, _ := vals[0].(string)
	return &store.Entity{
		Partition: partition,
		Key:       key,
		Token:     token,
		Value:     []byte(value),
	}, true
}

