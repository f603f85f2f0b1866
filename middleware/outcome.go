package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xraph/lakequeue/job"
)

// Body outcomes shared by logs, metrics and spans.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeInterrupted = "interrupted"
)

// Outcome classifies how a body finished. ctx is the context the
// middleware received: a body that stops because the host cancelled it
// (lease lost, cancel requested, shutdown) is interrupted, not failed.
func Outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case ctx.Err() != nil:
		return OutcomeInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

// jobAttrs identifies one lease of a job in log output.
func jobAttrs(j *job.Job, extra ...slog.Attr) []slog.Attr {
	attrs := []slog.Attr{
		slog.Int64("job_id", j.ID),
		slog.Int("queue_type", int(j.QueueType)),
		slog.Int64("group_id", j.GroupID),
		slog.Int64("version", j.Version),
	}
	return append(attrs, extra...)
}
