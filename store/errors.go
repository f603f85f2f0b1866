package store

import (
	"errors"
	"fmt"
)

// Kind classifies a store failure.
type Kind int

const (
	// KindConflict: insert of an existing key, or a token mismatch.
	KindConflict Kind = iota + 1
	// KindNotFound: the addressed entity does not exist.
	KindNotFound
	// KindTooLarge: a value or batch exceeds the store's limits.
	KindTooLarge
	// KindTransient: the backend was busy; the call may be retried.
	KindTransient
	// KindInvalid: the request itself is malformed.
	KindInvalid
)

// Sentinels matched by *Error through errors.Is.
var (
	ErrConflict  = errors.New("store: conflict")
	ErrNotFound  = errors.New("store: not found")
	ErrTooLarge  = errors.New("store: too large")
	ErrTransient = errors.New("store: transient failure")
	ErrInvalid   = errors.New("store: invalid request")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConflict:
		return ErrConflict
	case KindNotFound:
		return ErrNotFound
	case KindTooLarge:
		return ErrTooLarge
	case KindTransient:
		return ErrTransient
	case KindInvalid:
		return ErrInvalid
	default:
		return nil
	}
}

// Error is the error type returned by every backend for classified
// failures. Unclassified driver errors are wrapped with fmt.Errorf instead.
type Error struct {
	Kind Kind
	Op   string
	// Index of the failing write within an Apply batch, or -1.
	Index int
	Err   error
}

func (e *Error) Error() string {
	msg := "store: error"
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s (%s", msg, e.Op)
		if e.Index >= 0 {
			msg += fmt.Sprintf(" #%d", e.Index)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (e *Error) Unwrap() error { return e.Err }

// Conflict builds a KindConflict error for write i.
func Conflict(op string, i int) *Error { return &Error{Kind: KindConflict, Op: op, Index: i} }

// NotFound builds a KindNotFound error for write i.
func NotFound(op string, i int) *Error { return &Error{Kind: KindNotFound, Op: op, Index: i} }

// Transient wraps a retryable backend error.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Index: -1, Err: err}
}

// KindOf returns the kind of err, or 0 if err is not a store error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
