package job

import "time"

// Status is the lifecycle state of a job record.
type Status string

const (
	// StatusCreated means the job is waiting for its first lease.
	StatusCreated Status = "created"
	// StatusRunning means a worker holds (or held) a lease on the job.
	StatusRunning Status = "running"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job body reported failure.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was cancelled before or while running.
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// QueueType namespaces job ids, partitions and dispatch queues.
type QueueType uint8

// Job is one unit of schedulable work. Definition and Result are opaque to
// lakequeue; their structure belongs to the job body.
type Job struct {
	ID              int64     `json:"id"`
	QueueType       QueueType `json:"queueType"`
	GroupID         int64     `json:"groupId"`
	Status          Status    `json:"status"`
	Definition      string    `json:"definition,omitempty"`
	Result          string    `json:"result,omitempty"`
	CancelRequested bool      `json:"cancelRequested"`

	CreateTime    time.Time  `json:"createTime"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	HeartbeatTime time.Time  `json:"heartbeatTime"`

	HeartbeatTimeoutSeconds int64 `json:"heartbeatTimeoutSeconds"`

	// Version identifies the current lease. It changes on every
	// successful dequeue and only ever grows.
	Version int64 `json:"version"`

	// Token is the record store's concurrency token for the version of
	// the record this value was read from.
	Token string `json:"-" msgpack:"-"`
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.StartTime != nil {
		t := *j.StartTime
		cp.StartTime = &t
	}
	if j.EndTime != nil {
		t := *j.EndTime
		cp.EndTime = &t
	}
	return &cp
}

// HeartbeatExpired reports whether the lease recorded on j has lapsed at
// now. fallback is used when the record carries no timeout of its own.
func (j *Job) HeartbeatExpired(now time.Time, fallback time.Duration) bool {
	timeout := time.Duration(j.HeartbeatTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = fallback
	}
	return !j.HeartbeatTime.Add(timeout).After(now)
}
