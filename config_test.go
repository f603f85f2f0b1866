package lakequeue_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/lakequeue"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := lakequeue.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.KeepAlive(); got != cfg.HeartbeatTimeout/3 {
		t.Errorf("KeepAlive() = %s, want %s", got, cfg.HeartbeatTimeout/3)
	}
}

func TestLoadConfigFrom_Defaults(t *testing.T) {
	cfg, err := lakequeue.LoadConfigFrom(map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := lakequeue.DefaultConfig()
	if cfg.Concurrency != want.Concurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.Concurrency, want.Concurrency)
	}
	if cfg.HeartbeatTimeout != want.HeartbeatTimeout {
		t.Errorf("HeartbeatTimeout = %s, want %s", cfg.HeartbeatTimeout, want.HeartbeatTimeout)
	}
	if cfg.RecordStore != "memory" || cfg.DispatchQueue != "memory" {
		t.Errorf("backends = %q/%q, want memory/memory", cfg.RecordStore, cfg.DispatchQueue)
	}
}

func TestLoadConfigFrom_Overrides(t *testing.T) {
	cfg, err := lakequeue.LoadConfigFrom(map[string]string{
		"LAKEQUEUE_QUEUE_TYPE":         "3",
		"LAKEQUEUE_CONCURRENCY":        "12",
		"LAKEQUEUE_HEARTBEAT_TIMEOUT":  "90s",
		"LAKEQUEUE_KEEPALIVE_INTERVAL": "20s",
		"LAKEQUEUE_RECORD_STORE":       "redis",
		"LAKEQUEUE_CODEC":              "map",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueueType != 3 {
		t.Errorf("QueueType = %d, want 3", cfg.QueueType)
	}
	if cfg.Concurrency != 12 {
		t.Errorf("Concurrency = %d, want 12", cfg.Concurrency)
	}
	if cfg.HeartbeatTimeout != 90*time.Second {
		t.Errorf("HeartbeatTimeout = %s, want 90s", cfg.HeartbeatTimeout)
	}
	if cfg.KeepAlive() != 20*time.Second {
		t.Errorf("KeepAlive() = %s, want 20s", cfg.KeepAlive())
	}
	if cfg.RecordStore != "redis" || cfg.Codec != "map" {
		t.Errorf("unexpected backend/codec %q/%q", cfg.RecordStore, cfg.Codec)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*lakequeue.Config)
		want   error
	}{
		{"zero concurrency", func(c *lakequeue.Config) { c.Concurrency = 0 }, nil},
		{"tiny heartbeat", func(c *lakequeue.Config) { c.HeartbeatTimeout = time.Millisecond }, nil},
		{"keepalive too long", func(c *lakequeue.Config) { c.KeepAliveInterval = c.HeartbeatTimeout }, nil},
		{"negative group", func(c *lakequeue.Config) { c.ScheduleGroupID = -1 }, lakequeue.ErrInvalidGroupID},
		{"unknown codec", func(c *lakequeue.Config) { c.Codec = "xml" }, nil},
		{"negative job timeout", func(c *lakequeue.Config) { c.JobTimeout = -time.Second }, nil},
		{"unknown log level", func(c *lakequeue.Config) { c.LogLevel = "trace" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := lakequeue.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
