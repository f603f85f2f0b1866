// Package memory implements queue.Queue in process. Time comes from an
// injectable clock so tests can expire leases without sleeping.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/lakequeue/id"
	"github.com/xraph/lakequeue/queue"
)

var _ queue.Queue = (*Queue)(nil)

// Option configures the Queue.
type Option func(*Queue)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

type message struct {
	queue.Message
	seq uint64
}

// Queue is an in-memory dispatch queue.
type Queue struct {
	mu     sync.Mutex
	now    func() time.Time
	seq    uint64
	queues map[string]map[string]*message
}

// New returns an empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		now:    time.Now,
		queues: make(map[string]map[string]*message),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Send appends a visible message.
func (q *Queue) Send(_ context.Context, name string, body []byte) (*queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	q.seq++
	m := &message{
		Message: queue.Message{
			ID:            id.NewMessageID().String(),
			Body:          append([]byte(nil), body...),
			InsertedAt:    now,
			NextVisibleAt: now,
		},
		seq: q.seq,
	}
	msgs := q.queues[name]
	if msgs == nil {
		msgs = make(map[string]*message)
		q.queues[name] = msgs
	}
	msgs[m.ID] = m
	return copyOut(m), nil
}

// Receive leases the visible message with the earliest visibility time,
// oldest first on ties.
func (q *Queue) Receive(_ context.Context, name string, visibility time.Duration) (*queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	var next *message
	for _, m := range q.queues[name] {
		if m.NextVisibleAt.After(now) {
			continue
		}
		if next == nil || m.NextVisibleAt.Before(next.NextVisibleAt) ||
			(m.NextVisibleAt.Equal(next.NextVisibleAt) && m.seq < next.seq) {
			next = m
		}
	}
	if next == nil {
		return nil, nil
	}

	next.DequeueCount++
	next.Receipt = id.NewReceipt().String()
	next.NextVisibleAt = now.Add(visibility)
	return copyOut(next), nil
}

// Extend renews the lease held by receipt.
func (q *Queue) Extend(_ context.Context, name, msgID, receipt string, visibility time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := q.lookup(name, msgID, receipt)
	if m == nil {
		return "", queue.ErrMessageNotFound
	}
	m.Receipt = id.NewReceipt().String()
	m.NextVisibleAt = q.now().UTC().Add(visibility)
	return m.Receipt, nil
}

// Delete removes the message held by receipt.
func (q *Queue) Delete(_ context.Context, name, msgID, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lookup(name, msgID, receipt) == nil {
		return queue.ErrMessageNotFound
	}
	delete(q.queues[name], msgID)
	return nil
}

// Len returns the number of messages in name, visible or not.
func (q *Queue) Len(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[name])
}

func (q *Queue) lookup(name, msgID, receipt string) *message {
	m := q.queues[name][msgID]
	if m == nil || m.Receipt == "" || m.Receipt != receipt {
		return nil
	}
	return m
}

func copyOut(m *message) *queue.Message {
	cp := m.Message
	cp.Body = append([]byte(nil), m.Body...)
	return &cp
}
