// Package job defines the job record, its status machine, job identity and
// the factories that turn records into executable bodies.
//
// # Job Record
//
// A [Job] is created by Enqueue and never deleted. Its status moves
//
//	created → running → completed
//	created → running → failed
//	created → running → cancelled
//	created → cancelled
//	running → running            (re-lease after a lapsed heartbeat)
//
// Definition and Result are opaque strings owned by the job body. The
// Version field names the current lease and grows on every dequeue.
//
// # Identity
//
// An [Identifier] maps a definition to the deduplication key used by
// enqueue. [DefaultIdentifier] hashes the definition with its version
// property removed, so a resubmission under a newer schema version finds
// the existing job.
//
// # Projection
//
// [Fields] is the hand-written list of record properties. Lookups that
// should not return definitions use [FieldsWithoutDefinition] with
// [Project], and property-map codecs use [ToProperties] and
// [FromProperties].
//
// # Factories
//
// The hosting loop asks a [Factory] for a [Body] per leased record.
// [Registry] is the default factory: it reads the "jobType" property of
// the JSON definition and decodes the definition into the type registered
// for it:
//
//	type exportDef struct {
//	    Since time.Time `json:"since"`
//	    Until time.Time `json:"until"`
//	}
//
//	reg := job.NewRegistry()
//	job.RegisterDefinition(reg, job.NewDefinition("export",
//	    func(ctx context.Context, d exportDef, p job.Progress) (string, error) {
//	        p.Report("started")
//	        return export(ctx, d.Since, d.Until)
//	    },
//	    job.WithVersions(1, 2),
//	))
package job
