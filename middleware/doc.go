// Package middleware provides composable middleware for job execution.
//
// A [Middleware] wraps the body of a leased job. Middleware are composed
// with [Chain] and applied around every body the worker host runs. The
// first middleware in the slice is the outermost wrapper.
//
//	// logging → recover → body
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs job id, group, lease version, duration and outcome
//   - [Recover]: converts panics to a [PanicError]
//   - [Timeout], [TimeoutFunc]: cancel the body's context after a limit
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-job duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// [Outcome] labels a finished body as ok, error, timeout or interrupted
// (the host cancelled it). Middleware never writes the job record. The host persists results
// through KeepAlive and Complete.
package middleware
