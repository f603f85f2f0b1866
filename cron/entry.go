package cron

import (
	"time"

	"github.com/xraph/lakequeue/id"
	"github.com/xraph/lakequeue/job"
)

// BuildFunc produces the job definitions to enqueue for one scheduled
// slot. It must be deterministic in slot: every instance that fires the
// same slot has to produce the same definitions so that enqueue
// deduplicates them.
type BuildFunc func(slot time.Time) ([]string, error)

// Entry is a recurring enqueue.
type Entry struct {
	ID        id.ID         `json:"id"`
	Name      string        `json:"name"`
	Schedule  string        `json:"schedule"`
	QueueType job.QueueType `json:"queueType"`
	GroupID   int64         `json:"groupId"`
	Build     BuildFunc     `json:"-"`
	Enabled   bool          `json:"enabled"`
	LastRunAt *time.Time    `json:"lastRunAt,omitempty"`
	NextRunAt *time.Time    `json:"nextRunAt,omitempty"`
}

func (e *Entry) clone() *Entry {
	c := *e
	if e.LastRunAt != nil {
		t := *e.LastRunAt
		c.LastRunAt = &t
	}
	if e.NextRunAt != nil {
		t := *e.NextRunAt
		c.NextRunAt = &t
	}
	return &c
}
