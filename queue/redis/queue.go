// Package redis implements queue.Queue on Redis.
//
// Each named queue uses two keys sharing a hash tag:
//
//	{prefix}{name}:vis  zset  message id -> next visible time (unix ms)
//	{prefix}{name}:msg  hash  "<id>:b" body, "<id>:r" receipt,
//	                          "<id>:c" dequeue count, "<id>:t" insert time
//
// Receive, Extend and Delete are Lua scripts. The current time is passed in
// from Go so that a fake clock drives lease expiry in tests.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/lakequeue/id"
	"github.com/xraph/lakequeue/queue"
)

var _ queue.Queue = (*Queue)(nil)

// KEYS[1] vis, KEYS[2] msg. ARGV: now, next visible, receipt.
var receiveScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then return false end
local id = ids[1]
redis.call('ZADD', KEYS[1], ARGV[2], id)
redis.call('HSET', KEYS[2], id .. ':r', ARGV[3])
local c = redis.call('HINCRBY', KEYS[2], id .. ':c', 1)
local b = redis.call('HGET', KEYS[2], id .. ':b')
local t = redis.call('HGET', KEYS[2], id .. ':t')
return {id, b, c, t}
`)

// KEYS[1] vis, KEYS[2] msg. ARGV: id, receipt, next visible, new receipt.
var extendScript = goredis.NewScript(`
local r = redis.call('HGET', KEYS[2], ARGV[1] .. ':r')
if (not r) or r ~= ARGV[2] then return 0 end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1] .. ':r', ARGV[4])
return 1
`)

// KEYS[1] vis, KEYS[2] msg. ARGV: id, receipt.
var deleteScript = goredis.NewScript(`
local r = redis.call('HGET', KEYS[2], ARGV[1] .. ':r')
if (not r) or r ~= ARGV[2] then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1] .. ':b', ARGV[1] .. ':r', ARGV[1] .. ':c', ARGV[1] .. ':t')
return 1
`)

// Option configures the Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithKeyPrefix namespaces every key. The default is "lakequeue:q:".
func WithKeyPrefix(prefix string) Option {
	return func(q *Queue) { q.prefix = prefix }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue is a Redis-backed dispatch queue.
type Queue struct {
	client goredis.Cmdable
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// New creates a queue on client. The caller owns the client.
func New(client goredis.Cmdable, opts ...Option) *Queue {
	q := &Queue{
		client: client,
		prefix: "lakequeue:q:",
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Queue) keys(name string) []string {
	base := q.prefix + "{" + name + "}"
	return []string{base + ":vis", base + ":msg"}
}

// Send stores the body and makes the message visible now.
func (q *Queue) Send(ctx context.Context, name string, body []byte) (*queue.Message, error) {
	now := q.now().UTC()
	msgID := id.NewMessageID().String()
	keys := q.keys(name)

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, keys[1],
		msgID+":b", body,
		msgID+":c", 0,
		msgID+":t", now.UnixMilli(),
	)
	pipe.ZAdd(ctx, keys[0], goredis.Z{Score: float64(now.UnixMilli()), Member: msgID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("lakequeue/redis: send: %w", err)
	}

	return &queue.Message{
		ID:            msgID,
		Body:          append([]byte(nil), body...),
		InsertedAt:    time.UnixMilli(now.UnixMilli()).UTC(),
		NextVisibleAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

// Receive leases the visible message with the earliest deadline.
func (q *Queue) Receive(ctx context.Context, name string, visibility time.Duration) (*queue.Message, error) {
	now := q.now().UTC()
	next := now.Add(visibility)
	receipt := id.NewReceipt().String()

	res, err := receiveScript.Run(ctx, q.client, q.keys(name),
		now.UnixMilli(), next.UnixMilli(), receipt,
	).Slice()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lakequeue/redis: receive: %w", err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("lakequeue/redis: receive: unexpected reply %v", res)
	}

	msgID, _ := res[0].(string)
	body, _ := res[1].(string)
	count, _ := res[2].(int64)
	inserted, _ := res[3].(string)
	insertedMs, err := strconv.ParseInt(inserted, 10, 64)
	if err != nil {
		q.logger.Warn("message without insert time", "message_id", msgID, "queue", name)
	}

	return &queue.Message{
		ID:            msgID,
		Receipt:       receipt,
		Body:          []byte(body),
		DequeueCount:  int(count),
		InsertedAt:    time.UnixMilli(insertedMs).UTC(),
		NextVisibleAt: time.UnixMilli(next.UnixMilli()).UTC(),
	}, nil
}

// Extend renews the lease held by receipt.
func (q *Queue) Extend(ctx context.Context, name, msgID, receipt string, visibility time.Duration) (string, error) {
	next := q.now().UTC().Add(visibility)
	newReceipt := id.NewReceipt().String()

	ok, err := extendScript.Run(ctx, q.client, q.keys(name),
		msgID, receipt, next.UnixMilli(), newReceipt,
	).Int()
	if err != nil {
		return "", fmt.Errorf("lakequeue/redis: extend: %w", err)
	}
	if ok == 0 {
		return "", queue.ErrMessageNotFound
	}
	return newReceipt, nil
}

// Delete removes the message held by receipt.
func (q *Queue) Delete(ctx context.Context, name, msgID, receipt string) error {
	ok, err := deleteScript.Run(ctx, q.client, q.keys(name), msgID, receipt).Int()
	if err != nil {
		return fmt.Errorf("lakequeue/redis: delete: %w", err)
	}
	if ok == 0 {
		return queue.ErrMessageNotFound
	}
	return nil
}
