package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/lakequeue/job"
)

// Logging returns middleware that logs each body run with the lease it
// ran under. Failures log at Error; timeouts and host interruptions log
// at Warn since the host decides what happens to the record.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "job body started", jobAttrs(j)...)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		outcome := Outcome(ctx, err)
		level := slog.LevelInfo
		switch outcome {
		case OutcomeError:
			level = slog.LevelError
		case OutcomeTimeout, OutcomeInterrupted:
			level = slog.LevelWarn
		}
		attrs := jobAttrs(j,
			slog.String("outcome", outcome),
			slog.Duration("elapsed", elapsed),
		)
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.LogAttrs(ctx, level, "job body finished", attrs...)
		return err
	}
}
