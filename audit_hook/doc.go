// Package audithook is a lakequeue extension that turns job lifecycle
// events into audit records.
//
// Every hook emits a structured [AuditEvent] through the [Recorder]
// interface, with a severity (info for normal transitions, warning for
// declines and lost leases, critical for failures) and metadata such as
// queue type, group id and worker id. [NewLogRecorder] writes events to a
// slog.Logger; other backends plug in through [RecorderFunc].
//
// # Selective filtering
//
//	audithook.New(audithook.NewLogRecorder(logger),
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionLeaseLost,
//	    ),
//	)
package audithook
