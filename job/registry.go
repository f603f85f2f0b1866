package job

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Factory turns a leased job record into an executable body.
//
// Returning (nil, nil) declines the job: the hosting loop leaves the
// record alone so its lease lapses and another worker can pick it up.
// Returning an error means the job can never run and is completed as
// failed.
type Factory interface {
	Create(j *Job) (Body, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(j *Job) (Body, error)

// Create implements Factory.
func (f FactoryFunc) Create(j *Job) (Body, error) { return f(j) }

// ErrMalformedDefinition is returned by Registry.Create for definitions
// that are not a JSON object with a type field.
var ErrMalformedDefinition = errors.New("job: malformed definition")

// DefaultTypeField is the definition property naming the job type.
const DefaultTypeField = "jobType"

type bodyBuilder struct {
	accepts func(version int) bool
	build   func(raw []byte) (Body, error)
}

// Registry is a Factory that dispatches on a type property inside the
// JSON definition and decodes the definition into the registered type.
// It is safe for concurrent use.
type Registry struct {
	typeField    string
	versionField string

	mu       sync.RWMutex
	builders map[string]bodyBuilder
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTypeField changes the property that names the job type.
func WithTypeField(name string) RegistryOption {
	return func(r *Registry) { r.typeField = name }
}

// WithVersionField changes the property that carries the definition
// version.
func WithVersionField(name string) RegistryOption {
	return func(r *Registry) { r.versionField = name }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		typeField:    DefaultTypeField,
		versionField: DefaultVersionField,
		builders:     make(map[string]bodyBuilder),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterDefinition registers a typed definition. It is a package-level
// function because Go has no generic methods.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	b := bodyBuilder{
		accepts: def.accepts,
		build: func(raw []byte) (Body, error) {
			var t T
			if err := json.Unmarshal(raw, &t); err != nil {
				return nil, fmt.Errorf("unmarshal definition for job %q: %w", def.Name, err)
			}
			return func(ctx context.Context, p Progress) (string, error) {
				return def.Handler(ctx, t, p)
			}, nil
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[def.Name] = b
}

// Create implements Factory.
func (r *Registry) Create(j *Job) (Body, error) {
	raw := []byte(j.Definition)
	name, version, err := r.envelope(raw)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	b, ok := r.builders[name]
	r.mu.RUnlock()
	if !ok || !b.accepts(version) {
		return nil, nil //nolint:nilnil // declined
	}
	return b.build(raw)
}

// Names returns all registered job types.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	return names
}

func (r *Registry) envelope(raw []byte) (string, int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrMalformedDefinition, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", 0, fmt.Errorf("%w: trailing data after object", ErrMalformedDefinition)
	}
	name, _ := obj[r.typeField].(string)
	if name == "" {
		return "", 0, fmt.Errorf("%w: missing %q", ErrMalformedDefinition, r.typeField)
	}
	var version int
	if n, ok := obj[r.versionField].(json.Number); ok {
		v, err := n.Int64()
		if err != nil {
			return "", 0, fmt.Errorf("%w: %q: %w", ErrMalformedDefinition, r.versionField, err)
		}
		version = int(v)
	}
	return name, version, nil
}
