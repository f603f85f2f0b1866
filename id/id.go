// Package id generates the opaque identifiers lakequeue mints itself:
// worker identities, dispatch message ids and receipt tokens.
//
// Job ids are not TypeIDs. They are per-queue-type integers assigned by
// the engine's id counter, because they form part of the record store's
// sortable key schema.
//
// Every ID here is a TypeID: a UUIDv7-based, K-sortable, URL-safe value in
// the format "prefix_suffix".
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the kind of thing an ID names.
type Prefix string

const (
	PrefixWorker  Prefix = "wkr"
	PrefixMessage Prefix = "msg"
	PrefixReceipt Prefix = "rcpt"
	PrefixEntry   Prefix = "cron"
)

// ID is a prefix-qualified TypeID.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates an ID with the given prefix. It panics on an invalid
// prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string of any prefix.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks that it carries the expected prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// NewWorkerID identifies one hosting loop instance.
func NewWorkerID() ID { return New(PrefixWorker) }

// NewMessageID identifies a dispatch message for its whole lifetime.
func NewMessageID() ID { return New(PrefixMessage) }

// NewReceipt mints a receipt token. Receipts rotate on every receive and
// every visibility extension.
func NewReceipt() ID { return New(PrefixReceipt) }

// NewEntryID identifies a cron trigger entry.
func NewEntryID() ID { return New(PrefixEntry) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
