package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/lakequeue/job"
)

// Timeout returns middleware that bounds every body to d. A non-positive
// d disables the limit.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return TimeoutFunc(func(*job.Job) time.Duration { return d }, logger)
}

// TimeoutFunc is Timeout with a per-job limit, e.g. keyed on queue type.
// A body that overruns gets an error wrapping context.DeadlineExceeded.
func TimeoutFunc(limit func(*job.Job) time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		d := limit(j)
		if d <= 0 {
			return next(ctx)
		}
		bodyCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		err := next(bodyCtx)
		if err != nil && ctx.Err() == nil && bodyCtx.Err() == context.DeadlineExceeded {
			logger.LogAttrs(ctx, slog.LevelWarn, "job body exceeded its time limit",
				jobAttrs(j, slog.Duration("limit", d))...)
			return fmt.Errorf("job %d exceeded %s: %w", j.ID, d, context.DeadlineExceeded)
		}
		return err
	}
}
