package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/job"
)

type discardProgress struct{ last string }

func (p *discardProgress) Report(s string) { p.last = s }

func TestBuiltinJobs(t *testing.T) {
	r := builtinJobs()

	tests := []struct {
		name       string
		definition string
		declined   bool
		wantResult string
	}{
		{"noop default", `{"jobType":"noop"}`, false, "ok"},
		{"noop message", `{"jobType":"noop","message":"hi"}`, false, "hi"},
		{"sleep zero", `{"jobType":"sleep","seconds":0}`, false, "slept 0 s"},
		{"unknown type", `{"jobType":"export"}`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := r.Create(&job.Job{Definition: tt.definition})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if tt.declined {
				if body != nil {
					t.Fatal("expected the registry to decline")
				}
				return
			}
			got, err := body(context.Background(), &discardProgress{})
			if err != nil || got != tt.wantResult {
				t.Errorf("body = %q, %v; want %q", got, err, tt.wantResult)
			}
		})
	}
}

func TestSleepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runSleep(ctx, SleepJob{Seconds: 60}, &discardProgress{}); err == nil {
		t.Fatal("sleep ignored a cancelled context")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBackends_RejectUnknown(t *testing.T) {
	cfg := lakequeue.DefaultConfig()
	cfg.RecordStore = "cassandra"
	cfg.DispatchQueue = "kafka"
	b := &backends{cfg: cfg, logger: slog.Default()}
	t.Cleanup(func() { _ = b.Close() })

	if _, err := b.openStore(context.Background()); err == nil {
		t.Error("openStore accepted an unknown backend")
	}
	if _, err := b.openQueue(context.Background()); err == nil {
		t.Error("openQueue accepted an unknown backend")
	}
}

func TestBackends_PostgresNeedsDSN(t *testing.T) {
	for _, name := range []string{"postgres", "bun"} {
		cfg := lakequeue.DefaultConfig()
		cfg.RecordStore = name
		b := &backends{cfg: cfg, logger: slog.Default()}
		if _, err := b.openStore(context.Background()); err == nil {
			t.Errorf("%s store opened without a DSN", name)
		}
	}
}
