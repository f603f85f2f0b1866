package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/lakequeue/api"
	"github.com/xraph/lakequeue/cron"
	"github.com/xraph/lakequeue/engine"
	"github.com/xraph/lakequeue/job"
	queuemem "github.com/xraph/lakequeue/queue/memory"
	storemem "github.com/xraph/lakequeue/store/memory"
)

var silent = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T) (*httptest.Server, *engine.Engine, *cron.Scheduler) {
	t.Helper()
	eng := engine.New(storemem.New(), queuemem.New(), engine.WithLogger(silent))
	sched := cron.NewScheduler(nil, nil, silent)
	srv := httptest.NewServer(api.New(eng, api.WithScheduler(sched), api.WithLogger(silent)).Handler())
	t.Cleanup(srv.Close)
	return srv, eng, sched
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body %s", resp.StatusCode, want, body)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newServer(t)
	expectStatus(t, do(t, srv, http.MethodGet, "/healthz", nil), http.StatusOK)
}

func TestEnqueueAndLookup(t *testing.T) {
	srv, _, _ := newServer(t)
	group := int64(5)

	resp := do(t, srv, http.MethodPost, "/v1/queues/2/jobs",
		api.EnqueueRequest{Definitions: []string{`{"jobType":"a"}`, `{"jobType":"b"}`}, GroupID: &group})
	expectStatus(t, resp, http.StatusOK)
	jobs := decode[[]*job.Job](t, resp)
	if len(jobs) != 2 || jobs[0].GroupID != 5 || jobs[0].QueueType != 2 || jobs[0].Status != job.StatusCreated {
		t.Fatalf("enqueued = %+v", jobs)
	}

	resp = do(t, srv, http.MethodGet, "/v1/queues/2/jobs/"+itoa(jobs[1].ID)+"?definition=true", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[job.Job](t, resp); got.Definition != `{"jobType":"b"}` {
		t.Errorf("Definition = %q", got.Definition)
	}

	resp = do(t, srv, http.MethodGet, "/v1/queues/2/jobs?ids="+itoa(jobs[1].ID)+","+itoa(jobs[0].ID), nil)
	expectStatus(t, resp, http.StatusOK)
	byIDs := decode[[]*job.Job](t, resp)
	if len(byIDs) != 2 || byIDs[0].ID != jobs[1].ID || byIDs[0].Definition != "" {
		t.Errorf("by ids = %+v", byIDs)
	}

	resp = do(t, srv, http.MethodGet, "/v1/queues/2/groups/5/jobs", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[[]*job.Job](t, resp); len(got) != 2 {
		t.Errorf("group holds %d jobs, want 2", len(got))
	}

	resp = do(t, srv, http.MethodGet, "/v1/queues/2/groups/6/jobs", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[[]*job.Job](t, resp); got == nil || len(got) != 0 {
		t.Errorf("empty group = %v, want []", got)
	}
}

func TestErrors(t *testing.T) {
	srv, _, _ := newServer(t)
	tooMany := make([]string, 51)
	for i := range tooMany {
		tooMany[i] = itoa(int64(i))
	}
	negative := int64(-1)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown job", http.MethodGet, "/v1/queues/0/jobs/99", nil, http.StatusNotFound, api.CodeJobNotFound},
		{"bad job id", http.MethodGet, "/v1/queues/0/jobs/x", nil, http.StatusBadRequest, api.CodeBadRequest},
		{"bad queue type", http.MethodGet, "/v1/queues/300/jobs/1", nil, http.StatusBadRequest, api.CodeBadRequest},
		{"batch too large", http.MethodPost, "/v1/queues/0/jobs", api.EnqueueRequest{Definitions: tooMany}, http.StatusBadRequest, api.CodeBatchTooLarge},
		{"negative group", http.MethodPost, "/v1/queues/0/jobs", api.EnqueueRequest{Definitions: []string{"a"}, GroupID: &negative}, http.StatusBadRequest, api.CodeInvalidGroupID},
		{"unknown field", http.MethodPost, "/v1/queues/0/jobs", map[string]any{"defs": []string{"a"}}, http.StatusBadRequest, api.CodeBadRequest},
		{"cancel unknown", http.MethodPost, "/v1/queues/0/jobs/7/cancel", nil, http.StatusNotFound, api.CodeJobNotFound},
		{"dequeue without worker", http.MethodPost, "/v1/queues/0/leases", api.DequeueRequest{}, http.StatusBadRequest, api.CodeBadRequest},
		{"unknown cron", http.MethodGet, "/v1/crons/nope", nil, http.StatusNotFound, api.CodeEntryNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, tt.method, tt.path, tt.body)
			expectStatus(t, resp, tt.status)
			if got := decode[api.ErrorResponse](t, resp); got.Code != tt.code {
				t.Errorf("code = %q, want %q (%s)", got.Code, tt.code, got.Error)
			}
		})
	}
}

func TestLeaseLifecycle(t *testing.T) {
	srv, _, _ := newServer(t)

	resp := do(t, srv, http.MethodPost, "/v1/queues/0/leases", api.DequeueRequest{WorkerID: "wkr_http"})
	expectStatus(t, resp, http.StatusNoContent)

	expectStatus(t, do(t, srv, http.MethodPost, "/v1/queues/0/jobs",
		api.EnqueueRequest{Definitions: []string{"work"}}), http.StatusOK)

	resp = do(t, srv, http.MethodPost, "/v1/queues/0/leases",
		api.DequeueRequest{WorkerID: "wkr_http", HeartbeatTimeoutSeconds: 30})
	expectStatus(t, resp, http.StatusOK)
	leased := decode[job.Job](t, resp)
	if leased.Status != job.StatusRunning || leased.Version == 0 {
		t.Fatalf("leased = %+v", leased)
	}

	leased.Result = "halfway"
	resp = do(t, srv, http.MethodPost, "/v1/queues/0/leases/keepalive", leased)
	expectStatus(t, resp, http.StatusOK)
	ka := decode[api.KeepAliveResponse](t, resp)
	if ka.CancelRequested || ka.Job == nil {
		t.Fatalf("keepalive = %+v", ka)
	}

	expectStatus(t, do(t, srv, http.MethodPost, "/v1/queues/0/jobs/"+itoa(leased.ID)+"/cancel", nil), http.StatusNoContent)

	resp = do(t, srv, http.MethodPost, "/v1/queues/0/leases/keepalive", ka.Job)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[api.KeepAliveResponse](t, resp); !got.CancelRequested {
		t.Error("keepalive did not report the cancellation request")
	}

	resp = do(t, srv, http.MethodPost, "/v1/queues/0/leases/complete", api.CompleteRequest{Job: ka.Job})
	expectStatus(t, resp, http.StatusOK)
	if done := decode[job.Job](t, resp); done.Status != job.StatusCancelled {
		t.Errorf("final status = %s, want cancelled", done.Status)
	}

	// The lease is gone now.
	resp = do(t, srv, http.MethodPost, "/v1/queues/0/leases/keepalive", ka.Job)
	expectStatus(t, resp, http.StatusConflict)
	if got := decode[api.ErrorResponse](t, resp); got.Code != api.CodeLeaseLost {
		t.Errorf("code = %q, want %q", got.Code, api.CodeLeaseLost)
	}
}

func TestCompleteRejectsForeignQueue(t *testing.T) {
	srv, _, _ := newServer(t)
	j := &job.Job{ID: 1, QueueType: 4, Version: 1}
	resp := do(t, srv, http.MethodPost, "/v1/queues/0/leases/complete", api.CompleteRequest{Job: j})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestCronRoutes(t *testing.T) {
	srv, _, sched := newServer(t)
	build := func(time.Time) ([]string, error) { return []string{"x"}, nil }
	if err := sched.Add(&cron.Entry{Name: "hourly", Schedule: "0 * * * *", Build: build, Enabled: true}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	resp := do(t, srv, http.MethodGet, "/v1/crons/", nil)
	expectStatus(t, resp, http.StatusOK)
	if entries := decode[[]cron.Entry](t, resp); len(entries) != 1 || entries[0].Name != "hourly" {
		t.Errorf("entries = %+v", entries)
	}

	resp = do(t, srv, http.MethodPost, "/v1/crons/hourly/disable", nil)
	expectStatus(t, resp, http.StatusOK)
	if e := decode[cron.Entry](t, resp); e.Enabled {
		t.Error("entry still enabled")
	}

	resp = do(t, srv, http.MethodPost, "/v1/crons/hourly/enable", nil)
	expectStatus(t, resp, http.StatusOK)
	if e := decode[cron.Entry](t, resp); !e.Enabled || e.NextRunAt == nil {
		t.Errorf("enabled entry = %+v", e)
	}

	expectStatus(t, do(t, srv, http.MethodDelete, "/v1/crons/hourly", nil), http.StatusNoContent)
	expectStatus(t, do(t, srv, http.MethodGet, "/v1/crons/hourly", nil), http.StatusNotFound)
}

func TestRequestBodyMustBeJSON(t *testing.T) {
	srv, _, _ := newServer(t)
	resp, err := srv.Client().Post(srv.URL+"/v1/queues/0/jobs", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
