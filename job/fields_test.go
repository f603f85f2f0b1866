package job_test

import (
	"testing"
	"time"

	"github.com/xraph/lakequeue/job"
)

func sampleJob() *job.Job {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(time.Minute)
	return &job.Job{
		ID:                      42,
		QueueType:               3,
		GroupID:                 7,
		Status:                  job.StatusRunning,
		Definition:              `{"jobType":"export"}`,
		Result:                  "50%",
		CancelRequested:         true,
		CreateTime:              created,
		StartTime:               &started,
		HeartbeatTime:           started.Add(time.Second),
		HeartbeatTimeoutSeconds: 30,
		Version:                 1709294460000000000,
		Token:                   "etag-1",
	}
}

func TestProperties_RoundTrip(t *testing.T) {
	orig := sampleJob()
	back, err := job.FromProperties(job.ToProperties(orig, job.Fields), job.Fields)
	if err != nil {
		t.Fatalf("from properties: %v", err)
	}

	if back.ID != orig.ID || back.QueueType != orig.QueueType || back.GroupID != orig.GroupID {
		t.Errorf("identity fields differ: %+v", back)
	}
	if back.Status != orig.Status || back.Definition != orig.Definition || back.Result != orig.Result {
		t.Errorf("payload fields differ: %+v", back)
	}
	if !back.CancelRequested || back.Version != orig.Version || back.HeartbeatTimeoutSeconds != 30 {
		t.Errorf("lease fields differ: %+v", back)
	}
	if !back.CreateTime.Equal(orig.CreateTime) || !back.HeartbeatTime.Equal(orig.HeartbeatTime) {
		t.Errorf("times differ: %v / %v", back.CreateTime, back.HeartbeatTime)
	}
	if back.StartTime == nil || !back.StartTime.Equal(*orig.StartTime) {
		t.Errorf("StartTime = %v", back.StartTime)
	}
	if back.EndTime != nil {
		t.Errorf("EndTime = %v, want nil", back.EndTime)
	}
}

func TestProject_WithoutDefinition(t *testing.T) {
	orig := sampleJob()
	p := job.Project(orig, job.FieldsWithoutDefinition)

	if p.Definition != "" {
		t.Errorf("Definition = %q, want empty", p.Definition)
	}
	if p.ID != orig.ID || p.Result != orig.Result || p.Token != orig.Token {
		t.Errorf("projection dropped kept fields: %+v", p)
	}
	if orig.Definition == "" {
		t.Error("projection mutated the source record")
	}
}

func TestFromProperties_AcceptsNarrowIntegers(t *testing.T) {
	props := map[string]any{
		job.FieldID:        int8(5),
		job.FieldQueueType: uint8(2),
		job.FieldGroupID:   uint16(300),
		job.FieldStatus:    "created",
	}
	j, err := job.FromProperties(props, job.Fields)
	if err != nil {
		t.Fatalf("from properties: %v", err)
	}
	if j.ID != 5 || j.QueueType != 2 || j.GroupID != 300 || j.Status != job.StatusCreated {
		t.Errorf("decoded %+v", j)
	}
}

func TestFromProperties_RejectsWrongTypes(t *testing.T) {
	cases := []map[string]any{
		{job.FieldID: "five"},
		{job.FieldStatus: 1},
		{job.FieldCancelRequested: "yes"},
		{job.FieldQueueType: int64(1000)},
	}
	for _, props := range cases {
		if _, err := job.FromProperties(props, job.Fields); err == nil {
			t.Errorf("FromProperties(%v) succeeded, want error", props)
		}
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   job.Status
		terminal bool
	}{
		{job.StatusCreated, false},
		{job.StatusRunning, false},
		{job.StatusCompleted, true},
		{job.StatusFailed, true},
		{job.StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if !tt.status.Valid() {
			t.Errorf("%s.Valid() = false", tt.status)
		}
	}
	if job.Status("archived").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestHeartbeatExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	j := &job.Job{HeartbeatTime: now.Add(-5 * time.Second), HeartbeatTimeoutSeconds: 10}
	if j.HeartbeatExpired(now, time.Minute) {
		t.Error("lease with 5s left reported expired")
	}
	j.HeartbeatTimeoutSeconds = 5
	if !j.HeartbeatExpired(now, time.Minute) {
		t.Error("lease ending exactly now should be expired")
	}
	j.HeartbeatTimeoutSeconds = 0
	if j.HeartbeatExpired(now, time.Minute) {
		t.Error("fallback timeout not applied")
	}
}
