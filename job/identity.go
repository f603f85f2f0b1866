package job

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Identifier derives the deduplication key of a job from its definition.
// Two definitions with the same identifier are the same job: enqueueing
// the second one returns the record created for the first.
type Identifier interface {
	Identify(definition string) (string, error)
}

// IdentifierFunc adapts a plain function to Identifier.
type IdentifierFunc func(definition string) (string, error)

// Identify implements Identifier.
func (f IdentifierFunc) Identify(definition string) (string, error) { return f(definition) }

// DefaultVersionField is the definition property ignored by
// DefaultIdentifier. Bumping a job's schema version must not make an
// already-enqueued job look new.
const DefaultVersionField = "jobVersion"

// DefaultIdentifier hashes definitions with DefaultVersionField removed.
func DefaultIdentifier() Identifier {
	return FieldStrippingHash{Fields: []string{DefaultVersionField}}
}

// ContentHash identifies a definition by the SHA-256 of its exact bytes.
type ContentHash struct{}

// Identify implements Identifier.
func (ContentHash) Identify(definition string) (string, error) {
	return hashHex([]byte(definition)), nil
}

// FieldStrippingHash hashes a JSON object definition after removing the
// named top-level properties and re-encoding it with sorted keys, so that
// key order and whitespace do not change the identity either.
// Definitions that are not JSON objects are hashed as raw bytes.
type FieldStrippingHash struct {
	Fields []string
}

// Identify implements Identifier.
func (h FieldStrippingHash) Identify(definition string) (string, error) {
	trimmed := bytes.TrimSpace([]byte(definition))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return hashHex([]byte(definition)), nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return hashHex([]byte(definition)), nil //nolint:nilerr // not JSON, identify by raw bytes
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		// Trailing data after the object: canonicalizing would drop it.
		return hashHex([]byte(definition)), nil
	}
	for _, f := range h.Fields {
		delete(obj, f)
	}

	// encoding/json writes map keys in sorted order at every depth.
	canonical, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("job: canonicalize definition: %w", err)
	}
	return hashHex(canonical), nil
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
