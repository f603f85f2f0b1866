package engine_test

import (
	"testing"
	"time"

	"github.com/xraph/lakequeue/engine"
	"github.com/xraph/lakequeue/job"
)

func TestCodecs_PreserveJob(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC)
	src := &job.Job{
		ID:                      42,
		QueueType:               3,
		GroupID:                 7,
		Status:                  job.StatusRunning,
		Definition:              `{"jobType":"export"}`,
		Result:                  "50%",
		CancelRequested:         true,
		CreateTime:              started.Add(-time.Minute),
		StartTime:               &started,
		HeartbeatTime:           started,
		HeartbeatTimeoutSeconds: 600,
		Version:                 started.UnixNano(),
	}

	for _, c := range []engine.Codec{engine.SchemaCodec{}, engine.MapCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			t.Parallel()
			data, err := c.EncodeJob(src)
			if err != nil {
				t.Fatalf("EncodeJob: %v", err)
			}

			full, err := c.DecodeJob(data, nil)
			if err != nil {
				t.Fatalf("DecodeJob: %v", err)
			}
			if full.ID != src.ID || full.QueueType != src.QueueType || full.GroupID != src.GroupID ||
				full.Status != src.Status || full.Definition != src.Definition || full.Result != src.Result ||
				full.CancelRequested != src.CancelRequested || full.Version != src.Version ||
				full.HeartbeatTimeoutSeconds != src.HeartbeatTimeoutSeconds {
				t.Errorf("decoded %+v, want %+v", full, src)
			}
			if full.StartTime == nil || !full.StartTime.Equal(started) {
				t.Errorf("StartTime = %v, want %s", full.StartTime, started)
			}
			if full.EndTime != nil {
				t.Errorf("EndTime = %v, want nil", full.EndTime)
			}
			if !full.CreateTime.Equal(src.CreateTime) || !full.HeartbeatTime.Equal(src.HeartbeatTime) {
				t.Errorf("times = %s/%s", full.CreateTime, full.HeartbeatTime)
			}

			bare, err := c.DecodeJob(data, job.FieldsWithoutDefinition)
			if err != nil {
				t.Fatalf("DecodeJob projected: %v", err)
			}
			if bare.Definition != "" || bare.Result != src.Result || bare.ID != src.ID {
				t.Errorf("projected = %+v", bare)
			}
		})
	}
}

func TestCodecByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "schema", false},
		{"schema", "schema", false},
		{"map", "map", false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		c, err := engine.CodecByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("CodecByName(%q) succeeded", tt.name)
			}
			continue
		}
		if err != nil || c.Name() != tt.want {
			t.Errorf("CodecByName(%q) = %v / %v, want %s", tt.name, c, err, tt.want)
		}
	}
}
