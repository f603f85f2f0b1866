package engine

import (
	"context"
	"fmt"

	"github.com/xraph/lakequeue/job"
	"github.com/xraph/lakequeue/store"
)

// lockEntity binds a job identifier to its record and current dispatch
// message. It lives in the job's partition so that record and lock
// change together.
type lockEntity struct {
	JobKey    string `json:"jobKey" msgpack:"jobKey"`
	MessageID string `json:"messageId,omitempty" msgpack:"messageId,omitempty"`
	Receipt   string `json:"receipt,omitempty" msgpack:"receipt,omitempty"`
}

// indexEntity maps a job id back to the record's partition and key.
type indexEntity struct {
	Partition string `json:"partition" msgpack:"partition"`
	Key       string `json:"key" msgpack:"key"`
}

// counterEntity holds the next unassigned job id of a queue type.
type counterEntity struct {
	NextID int64 `json:"nextId" msgpack:"nextId"`
}

// message is the dispatch message body. It points at the lock rather
// than carrying the job, so the record store stays authoritative.
type message struct {
	JobPartition string `json:"jobPartition"`
	JobKey       string `json:"jobKey"`
	LockKey      string `json:"lockKey"`
}

func (e *Engine) jobEntity(partition string, j *job.Job) (*store.Entity, error) {
	data, err := e.codec.EncodeJob(j)
	if err != nil {
		return nil, fmt.Errorf("encode job %d: %w", j.ID, err)
	}
	return &store.Entity{
		Partition: partition,
		Key:       jobKey(j.GroupID, j.ID),
		Token:     j.Token,
		Value:     data,
	}, nil
}

func (e *Engine) lockEntity(partition, key, token string, l lockEntity) (*store.Entity, error) {
	data, err := e.codec.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encode lock: %w", err)
	}
	return &store.Entity{Partition: partition, Key: key, Token: token, Value: data}, nil
}

func (e *Engine) decodeJob(ent *store.Entity, fields []job.Field) (*job.Job, error) {
	j, err := e.codec.DecodeJob(ent.Value, fields)
	if err != nil {
		return nil, fmt.Errorf("lakequeue/engine: %s/%s: %w", ent.Partition, ent.Key, err)
	}
	j.Token = ent.Token
	return j, nil
}

// readJob reads a full job record.
func (e *Engine) readJob(ctx context.Context, partition, key string) (*job.Job, error) {
	ent, err := e.records.Get(ctx, partition, key)
	if err != nil {
		return nil, err
	}
	return e.decodeJob(ent, nil)
}

// readLock reads a lock and returns it with its token.
func (e *Engine) readLock(ctx context.Context, partition, key string) (lockEntity, string, error) {
	var l lockEntity
	ent, err := e.records.Get(ctx, partition, key)
	if err != nil {
		return l, "", err
	}
	if err := e.codec.Unmarshal(ent.Value, &l); err != nil {
		return l, "", fmt.Errorf("lakequeue/engine: decode lock %s/%s: %w", partition, key, err)
	}
	return l, ent.Token, nil
}
