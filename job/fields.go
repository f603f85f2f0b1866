package job

import (
	"fmt"
	"time"
)

// Field is one projectable property of a Job. The list is written out by
// hand so that property names are stable and projection needs no
// reflection.
type Field struct {
	Name string
	get  func(*Job) (any, bool)
	set  func(*Job, any) error
}

// Property names, as stored by property-map codecs.
const (
	FieldID                      = "Id"
	FieldQueueType               = "QueueType"
	FieldGroupID                 = "GroupId"
	FieldStatus                  = "Status"
	FieldDefinition              = "Definition"
	FieldResult                  = "Result"
	FieldCancelRequested         = "CancelRequested"
	FieldCreateTime              = "CreateDate"
	FieldStartTime               = "StartDate"
	FieldEndTime                 = "EndDate"
	FieldHeartbeatTime           = "HeartbeatDateTime"
	FieldHeartbeatTimeoutSeconds = "HeartbeatTimeoutSec"
	FieldVersion                 = "Version"
)

// Fields lists every Job property in storage order.
var Fields = []Field{
	intField(FieldID, func(j *Job) *int64 { return &j.ID }),
	{
		Name: FieldQueueType,
		get:  func(j *Job) (any, bool) { return int64(j.QueueType), true },
		set: func(j *Job, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			if n < 0 || n > 255 {
				return fmt.Errorf("queue type %d out of range", n)
			}
			j.QueueType = QueueType(n)
			return nil
		},
	},
	intField(FieldGroupID, func(j *Job) *int64 { return &j.GroupID }),
	{
		Name: FieldStatus,
		get:  func(j *Job) (any, bool) { return string(j.Status), true },
		set: func(j *Job, v any) error {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("want string, got %T", v)
			}
			j.Status = Status(s)
			return nil
		},
	},
	stringField(FieldDefinition, func(j *Job) *string { return &j.Definition }),
	stringField(FieldResult, func(j *Job) *string { return &j.Result }),
	{
		Name: FieldCancelRequested,
		get:  func(j *Job) (any, bool) { return j.CancelRequested, true },
		set: func(j *Job, v any) error {
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("want bool, got %T", v)
			}
			j.CancelRequested = b
			return nil
		},
	},
	timeField(FieldCreateTime, func(j *Job) *time.Time { return &j.CreateTime }),
	optionalTimeField(FieldStartTime, func(j *Job) **time.Time { return &j.StartTime }),
	optionalTimeField(FieldEndTime, func(j *Job) **time.Time { return &j.EndTime }),
	timeField(FieldHeartbeatTime, func(j *Job) *time.Time { return &j.HeartbeatTime }),
	intField(FieldHeartbeatTimeoutSeconds, func(j *Job) *int64 { return &j.HeartbeatTimeoutSeconds }),
	intField(FieldVersion, func(j *Job) *int64 { return &j.Version }),
}

// FieldsWithoutDefinition is Fields minus Definition, for lookups that
// must not ship large definitions back to the caller.
var FieldsWithoutDefinition = Without(FieldDefinition)

// Without returns Fields minus the named properties.
func Without(names ...string) []Field {
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	out := make([]Field, 0, len(Fields))
	for _, f := range Fields {
		if _, ok := skip[f.Name]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Project returns a copy of j carrying only the given fields. The
// concurrency token is preserved.
func Project(j *Job, fields []Field) *Job {
	out := &Job{Token: j.Token}
	for _, f := range fields {
		if v, ok := f.get(j); ok {
			_ = f.set(out, v) //nolint:errcheck // values come from a typed Job
		}
	}
	return out
}

// ToProperties flattens j into a property map. Times are stored as UTC
// Unix nanoseconds; zero and unset times are omitted.
func ToProperties(j *Job, fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := f.get(j); ok {
			props[f.Name] = v
		}
	}
	return props
}

// FromProperties rebuilds a Job from a property map, reading only the
// given fields. Missing properties keep their zero value.
func FromProperties(props map[string]any, fields []Field) (*Job, error) {
	j := &Job{}
	for _, f := range fields {
		v, ok := props[f.Name]
		if !ok || v == nil {
			continue
		}
		if err := f.set(j, v); err != nil {
			return nil, fmt.Errorf("job: property %s: %w", f.Name, err)
		}
	}
	return j, nil
}

// ── field builders ──────────────────────────────────

func intField(name string, ptr func(*Job) *int64) Field {
	return Field{
		Name: name,
		get:  func(j *Job) (any, bool) { return *ptr(j), true },
		set: func(j *Job, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			*ptr(j) = n
			return nil
		},
	}
}

func stringField(name string, ptr func(*Job) *string) Field {
	return Field{
		Name: name,
		get:  func(j *Job) (any, bool) { return *ptr(j), true },
		set: func(j *Job, v any) error {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("want string, got %T", v)
			}
			*ptr(j) = s
			return nil
		},
	}
}

func timeField(name string, ptr func(*Job) *time.Time) Field {
	return Field{
		Name: name,
		get: func(j *Job) (any, bool) {
			t := ptr(j)
			if t.IsZero() {
				return nil, false
			}
			return t.UnixNano(), true
		},
		set: func(j *Job, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			*ptr(j) = time.Unix(0, n).UTC()
			return nil
		},
	}
}

func optionalTimeField(name string, ptr func(*Job) **time.Time) Field {
	return Field{
		Name: name,
		get: func(j *Job) (any, bool) {
			t := *ptr(j)
			if t == nil {
				return nil, false
			}
			return t.UnixNano(), true
		},
		set: func(j *Job, v any) error {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			t := time.Unix(0, n).UTC()
			*ptr(j) = &t
			return nil
		},
	}
}

// toInt64 accepts every integer width a generic decoder may produce.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > 1<<63-1 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case uint:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}
