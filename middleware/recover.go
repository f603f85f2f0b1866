package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/lakequeue/job"
)

// PanicError is returned in place of a body that panicked. The host
// records it like any other body failure.
type PanicError struct {
	JobID   int64
	Version int64
	Value   any
	Stack   []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %d: %v", e.JobID, e.Value)
}

// Unwrap exposes a panic value that was itself an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Recover returns middleware that turns a panicking body into a
// *PanicError so the lease still reaches Complete.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			pe := &PanicError{JobID: j.ID, Version: j.Version, Value: r, Stack: debug.Stack()}
			logger.LogAttrs(ctx, slog.LevelError, "job body panicked", jobAttrs(j,
				slog.Any("panic", r),
				slog.String("stack", string(pe.Stack)),
			)...)
			err = pe
		}()
		return next(ctx)
	}
}
