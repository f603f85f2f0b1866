package job

import "context"

// Progress lets a running job body publish an intermediate result. The
// hosting loop persists the latest value on the next KeepAlive.
type Progress interface {
	Report(result string)
}

// Body is an executable job. It returns the final result; a non-nil error
// marks the job failed.
type Body func(ctx context.Context, progress Progress) (string, error)

// Definition is a typed job definition. T is the JSON shape of the job's
// definition payload.
type Definition[T any] struct {
	// Name matches the definition's type field (see Registry).
	Name string

	// Handler runs the job.
	Handler func(ctx context.Context, def T, progress Progress) (string, error)

	// MinVersion and MaxVersion bound the definition versions this
	// process can run. Zero means unbounded. Out-of-range jobs are
	// declined and left for a worker that understands them.
	MinVersion int
	MaxVersion int
}

// DefinitionOption configures a Definition.
type DefinitionOption func(*versionRange)

type versionRange struct{ min, max int }

// WithVersions restricts the definition versions this process accepts.
func WithVersions(minVersion, maxVersion int) DefinitionOption {
	return func(v *versionRange) {
		v.min = minVersion
		v.max = maxVersion
	}
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](
	name string,
	handler func(ctx context.Context, def T, progress Progress) (string, error),
	opts ...DefinitionOption,
) *Definition[T] {
	var vr versionRange
	for _, opt := range opts {
		opt(&vr)
	}
	return &Definition[T]{
		Name:       name,
		Handler:    handler,
		MinVersion: vr.min,
		MaxVersion: vr.max,
	}
}

func (d *Definition[T]) accepts(version int) bool {
	if d.MinVersion > 0 && version < d.MinVersion {
		return false
	}
	if d.MaxVersion > 0 && version > d.MaxVersion {
		return false
	}
	return true
}
