package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/api"
	"github.com/xraph/lakequeue/client"
	"github.com/xraph/lakequeue/cron"
	"github.com/xraph/lakequeue/engine"
	"github.com/xraph/lakequeue/job"
	queuemem "github.com/xraph/lakequeue/queue/memory"
	storemem "github.com/xraph/lakequeue/store/memory"
	"github.com/xraph/lakequeue/worker"
)

var silent = slog.New(slog.NewTextHandler(io.Discard, nil))

func newClient(t *testing.T, opts ...client.Option) (*client.Client, *engine.Engine) {
	t.Helper()
	eng := engine.New(storemem.New(), queuemem.New(), engine.WithLogger(silent))
	sched := cron.NewScheduler(nil, nil, silent)
	srv := httptest.NewServer(api.New(eng, api.WithScheduler(sched), api.WithLogger(silent)).Handler())
	t.Cleanup(srv.Close)
	opts = append([]client.Option{client.WithHTTPClient(srv.Client()), client.WithLogger(silent)}, opts...)
	return client.New(srv.URL, opts...), eng
}

func TestClient_Ping(t *testing.T) {
	c, _ := newClient(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestClient_EnqueueAndLookup(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)

	jobs, err := c.Enqueue(ctx, 1, []string{`{"jobType":"a"}`, `{"jobType":"b"}`}, client.WithGroupID(9))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(jobs) != 2 || jobs[0].GroupID != 9 || jobs[0].QueueType != 1 {
		t.Fatalf("enqueued = %+v", jobs)
	}

	again, err := c.Enqueue(ctx, 1, []string{`{"jobType":"a"}`})
	if err != nil {
		t.Fatalf("re-Enqueue: %v", err)
	}
	if again[0].ID != jobs[0].ID {
		t.Errorf("re-enqueue created job %d, want existing %d", again[0].ID, jobs[0].ID)
	}

	one, err := c.GetByID(ctx, 1, jobs[1].ID, true)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if one.Definition != `{"jobType":"b"}` {
		t.Errorf("Definition = %q", one.Definition)
	}

	byIDs, err := c.GetByIDs(ctx, 1, []int64{jobs[1].ID, jobs[0].ID}, false)
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(byIDs) != 2 || byIDs[0].ID != jobs[1].ID || byIDs[1].Definition != "" {
		t.Errorf("GetByIDs = %+v", byIDs)
	}

	group, err := c.GetByGroupID(ctx, 1, 9, false)
	if err != nil {
		t.Fatalf("GetByGroupID: %v", err)
	}
	if len(group) != 2 {
		t.Errorf("group holds %d jobs, want 2", len(group))
	}
}

func TestClient_SentinelErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)

	if _, err := c.GetByID(ctx, 0, 42, false); !errors.Is(err, lakequeue.ErrJobNotFound) {
		t.Errorf("GetByID unknown: err = %v, want ErrJobNotFound", err)
	}
	if _, err := c.Enqueue(ctx, 0, []string{"x"}, client.WithGroupID(-3)); !errors.Is(err, lakequeue.ErrInvalidGroupID) {
		t.Errorf("negative group: err = %v, want ErrInvalidGroupID", err)
	}
	if err := c.CancelByID(ctx, 0, 42); !errors.Is(err, lakequeue.ErrJobNotFound) {
		t.Errorf("CancelByID unknown: err = %v, want ErrJobNotFound", err)
	}
	if _, err := c.Dequeue(ctx, 0, "", 10); !client.IsStatus(err, http.StatusBadRequest) {
		t.Errorf("Dequeue without worker: err = %v, want 400", err)
	}
}

func TestClient_LeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)

	empty, err := c.Dequeue(ctx, 0, "wkr_client", 30)
	if err != nil || empty != nil {
		t.Fatalf("empty Dequeue = %v, %v; want nil, nil", empty, err)
	}

	if _, err := c.Enqueue(ctx, 0, []string{"work"}, client.WithGroupID(2)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	leased, err := c.Dequeue(ctx, 0, "wkr_client", 30)
	if err != nil || leased == nil {
		t.Fatalf("Dequeue = %v, %v", leased, err)
	}

	leased.Result = "half"
	cancelRequested, err := c.KeepAlive(ctx, leased)
	if err != nil || cancelRequested {
		t.Fatalf("KeepAlive = %v, %v", cancelRequested, err)
	}

	if err := c.CancelByGroupID(ctx, 0, 2); err != nil {
		t.Fatalf("CancelByGroupID: %v", err)
	}
	if cancelRequested, err = c.KeepAlive(ctx, leased); err != nil || !cancelRequested {
		t.Fatalf("KeepAlive after cancel = %v, %v; want true", cancelRequested, err)
	}

	if err := c.Complete(ctx, leased, false); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if leased.Status != job.StatusCancelled {
		t.Errorf("final status = %s, want cancelled", leased.Status)
	}

	if _, err := c.KeepAlive(ctx, leased); !errors.Is(err, lakequeue.ErrLeaseLost) {
		t.Errorf("KeepAlive after complete: err = %v, want ErrLeaseLost", err)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":"store down","code":"unavailable"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name    string
		retries int
		wantErr bool
	}{
		{"no retries", 0, true},
		{"enough retries", 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls.Store(0)
			c := client.New(srv.URL, client.WithHTTPClient(srv.Client()), client.WithLogger(silent),
				client.WithRetry(tt.retries, time.Millisecond))
			err := c.Ping(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Ping err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !client.IsStatus(err, http.StatusServiceUnavailable) {
				t.Errorf("err = %v, want a 503 APIError", err)
			}
		})
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"nope","code":"bad_request"}`)
	}))
	t.Cleanup(srv.Close)

	c := client.New(srv.URL, client.WithHTTPClient(srv.Client()), client.WithLogger(silent),
		client.WithRetry(3, time.Millisecond))
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("Ping succeeded against a 400")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server saw %d calls, want 1", n)
	}
}

func TestClient_DrivesRemoteWorker(t *testing.T) {
	ctx := context.Background()
	c, eng := newClient(t)

	jobs, err := eng.Enqueue(ctx, 0, []string{"remote"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	h := worker.NewHost(c, job.FactoryFunc(func(*job.Job) (job.Body, error) {
		return func(_ context.Context, progress job.Progress) (string, error) {
			progress.Report("started")
			return "ran remotely", nil
		}, nil
	}),
		worker.WithLogger(silent),
		worker.WithConcurrency(1),
		worker.WithHeartbeatTimeout(time.Second),
		worker.WithKeepAliveInterval(50*time.Millisecond),
		worker.WithPollInterval(20*time.Millisecond),
	)
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Stop(stopCtx)
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		j, err := c.GetByID(ctx, 0, jobs[0].ID, false)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if j.Status.IsTerminal() {
			if j.Status != job.StatusCompleted || j.Result != "ran remotely" {
				t.Errorf("final = %s/%q, want completed/ran remotely", j.Status, j.Result)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job still %s", j.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
