// Package worker hosts leased jobs.
//
// A Host runs a fixed number of polling loops against a JobSource
// (usually *engine.Engine). Each loop dequeues one job at a time, asks a
// job.Factory for the body, runs it through middleware while a keep-alive
// ticker renews the lease, and completes the job with the body's result.
//
//	host := worker.NewHost(eng, registry,
//	    worker.WithQueueType(3),
//	    worker.WithConcurrency(5),
//	    worker.WithMiddleware(middleware.Recover(logger)),
//	)
//	err := host.Run(ctx)
//
// Jobs are never retried by the host. A job whose body fails is completed
// as failed; a job the factory declines, or one whose group is at its
// concurrency limit, is left leased so the lease lapses and any worker
// can take it again.
package worker
