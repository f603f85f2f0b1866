package engine

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/lakequeue/job"
)

// Codec serializes the entities the engine keeps in the record store.
type Codec interface {
	// Name identifies the codec in configuration.
	Name() string

	// EncodeJob serializes a job record.
	EncodeJob(j *job.Job) ([]byte, error)

	// DecodeJob deserializes a job record. A nil fields slice decodes
	// every field; otherwise only the named fields are populated.
	DecodeJob(data []byte, fields []job.Field) (*job.Job, error)

	// Marshal and Unmarshal serialize the engine's auxiliary entities
	// (locks, index entries and counters).
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// CodecByName returns the codec registered under name: "schema" or "map".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", SchemaCodec{}.Name():
		return SchemaCodec{}, nil
	case MapCodec{}.Name():
		return MapCodec{}, nil
	default:
		return nil, fmt.Errorf("lakequeue/engine: unknown codec %q", name)
	}
}

// SchemaCodec stores entities as JSON documents of their struct shape.
// Projection happens after decoding.
type SchemaCodec struct{}

// Name implements Codec.
func (SchemaCodec) Name() string { return "schema" }

// EncodeJob implements Codec.
func (SchemaCodec) EncodeJob(j *job.Job) ([]byte, error) {
	return json.Marshal(j)
}

// DecodeJob implements Codec.
func (SchemaCodec) DecodeJob(data []byte, fields []job.Field) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if fields != nil {
		return job.Project(&j, fields), nil
	}
	return &j, nil
}

// Marshal implements Codec.
func (SchemaCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements Codec.
func (SchemaCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// MapCodec stores entities as msgpack property maps keyed by the names in
// job.Fields. Decoding reads only the requested properties.
type MapCodec struct{}

// Name implements Codec.
func (MapCodec) Name() string { return "map" }

// EncodeJob implements Codec.
func (MapCodec) EncodeJob(j *job.Job) ([]byte, error) {
	return msgpack.Marshal(job.ToProperties(j, job.Fields))
}

// DecodeJob implements Codec.
func (MapCodec) DecodeJob(data []byte, fields []job.Field) (*job.Job, error) {
	var props map[string]any
	if err := msgpack.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if fields == nil {
		fields = job.Fields
	}
	return job.FromProperties(props, fields)
}

// Marshal implements Codec.
func (MapCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

// Unmarshal implements Codec.
func (MapCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
