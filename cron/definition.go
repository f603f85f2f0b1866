package cron

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/lakequeue/job"
)

// DefaultSlotField is the definition property Template stamps with the
// scheduled slot.
const DefaultSlotField = "scheduledTime"

// Definition is a typed cron definition. T is the JSON shape of the job
// definition enqueued on each slot.
type Definition[T any] struct {
	// Name is the unique identifier for this cron entry.
	Name string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Schedule string

	QueueType job.QueueType
	GroupID   int64

	// Build returns the definition for a slot.
	Build func(slot time.Time) T
}

// Register adds a typed definition to s. It is a package-level function
// because Go has no generic methods.
func Register[T any](s *Scheduler, def Definition[T]) error {
	build := func(slot time.Time) ([]string, error) {
		raw, err := json.Marshal(def.Build(slot))
		if err != nil {
			return nil, fmt.Errorf("marshal definition for cron %q: %w", def.Name, err)
		}
		return []string{string(raw)}, nil
	}
	return s.Add(&Entry{
		Name:      def.Name,
		Schedule:  def.Schedule,
		QueueType: def.QueueType,
		GroupID:   def.GroupID,
		Build:     build,
		Enabled:   true,
	})
}

// Template returns a BuildFunc that enqueues definition, a JSON object,
// with slotField set to the slot in RFC 3339. An empty slotField means
// DefaultSlotField.
func Template(definition, slotField string) (BuildFunc, error) {
	if slotField == "" {
		slotField = DefaultSlotField
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(definition)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, fmt.Errorf("lakequeue/cron: template must be a JSON object: %q", definition)
	}

	return func(slot time.Time) ([]string, error) {
		out := make(map[string]any, len(obj)+1)
		for k, v := range obj {
			out[k] = v
		}
		out[slotField] = slot.UTC().Format(time.RFC3339)
		// Map keys marshal sorted, so equal slots give equal text.
		raw, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		return []string{string(raw)}, nil
	}, nil
}
