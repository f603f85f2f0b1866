package main

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/lakequeue/job"
)

// NoopJob completes at once. Its result echoes Message.
type NoopJob struct {
	JobType string `json:"jobType"`
	Message string `json:"message,omitempty"`
}

// SleepJob waits Seconds, reporting progress every second.
type SleepJob struct {
	JobType string `json:"jobType"`
	Seconds int    `json:"seconds"`
}

// builtinJobs returns the job types the daemon can run without any
// application code linked in.
func builtinJobs() *job.Registry {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("noop",
		func(_ context.Context, def NoopJob, _ job.Progress) (string, error) {
			if def.Message == "" {
				return "ok", nil
			}
			return def.Message, nil
		}))
	job.RegisterDefinition(r, job.NewDefinition("sleep", runSleep))
	return r
}

func runSleep(ctx context.Context, def SleepJob, progress job.Progress) (string, error) {
	if def.Seconds < 0 {
		return "", fmt.Errorf("sleep: negative duration %d", def.Seconds)
	}
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for elapsed := 0; elapsed < def.Seconds; {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-tick.C:
			elapsed++
			progress.Report(fmt.Sprintf("slept %d/%d s", elapsed, def.Seconds))
		}
	}
	return fmt.Sprintf("slept %d s", def.Seconds), nil
}
