// Package lakequeue provides a distributed job queue built on two weak
// storage primitives: a partitioned record store with single-partition
// atomic writes, and an at-least-once message queue with visibility leases.
//
// From these it derives exactly-once-effect scheduling: enqueue is
// idempotent on the content of a job definition, dequeue hands out leases
// tagged with a monotonic version, and a heartbeat (KeepAlive) renews the
// lease while a worker runs the job. Any crash between two steps converges
// on retry.
//
// # Quick Start
//
//	records := memory.New()           // store/memory
//	messages := memqueue.New()        // queue/memory
//	eng := engine.New(records, messages)
//
//	jobs, err := eng.Enqueue(ctx, 1, []string{`{"jobType":"export"}`},
//	    engine.WithGroupID(7))
//
//	reg := job.NewRegistry()
//	job.RegisterDefinition(reg, job.NewDefinition("export", runExport))
//
//	host := worker.NewHost(eng, reg, worker.WithQueueType(1))
//	err = host.Run(ctx)
//
// # Architecture
//
// The root package holds configuration and sentinel errors. Subsystems live
// in their own packages: store (record store and backends), queue (dispatch
// queue and backends), job (record schema, identity, factories), engine
// (the queue protocol), worker (the hosting loop), cron (periodic enqueue),
// plus ext, middleware, observability and audit_hook for lifecycle hooks
// and telemetry. The api package serves the engine over HTTP, client talks
// to it, and cmd/lakequeued wires everything into one daemon.
package lakequeue
