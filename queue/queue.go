package queue

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotFound is returned by Extend and Delete when the message no
// longer exists or the receipt is stale.
var ErrMessageNotFound = errors.New("queue: message not found")

// Message is one dispatch message.
type Message struct {
	ID      string
	Receipt string
	Body    []byte

	// DequeueCount is the number of times the message has been received.
	DequeueCount int

	InsertedAt    time.Time
	NextVisibleAt time.Time
}

// Queue is an at-least-once dispatch queue with visibility leases.
type Queue interface {
	// Send appends a message that is visible immediately.
	Send(ctx context.Context, name string, body []byte) (*Message, error)

	// Receive leases the next visible message for visibility. It returns
	// (nil, nil) when nothing is visible.
	Receive(ctx context.Context, name string, visibility time.Duration) (*Message, error)

	// Extend pushes the message's visibility to now+visibility and returns
	// the new receipt.
	Extend(ctx context.Context, name, id, receipt string, visibility time.Duration) (string, error)

	// Delete removes the message.
	Delete(ctx context.Context, name, id, receipt string) error
}
