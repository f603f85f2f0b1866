package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/job"
)

// dequeue leases one job. An empty queue answers 204; a discarded
// message answers 204 with HeaderDiscarded set.
func (a *API) dequeue(w http.ResponseWriter, r *http.Request) {
	qt, err := queueTypeParam(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req DequeueRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, err)
		return
	}
	if req.WorkerID == "" {
		fail(w, fmt.Errorf("%w: workerId is required", errBadRequest))
		return
	}

	j, err := a.eng.Dequeue(r.Context(), qt, req.WorkerID, req.HeartbeatTimeoutSeconds)
	switch {
	case errors.Is(err, lakequeue.ErrMessageDiscarded):
		w.Header().Set(HeaderDiscarded, "true")
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		fail(w, err)
	case j == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusOK, j)
	}
}

func (a *API) keepAlive(w http.ResponseWriter, r *http.Request) {
	j, ok := a.leasedJob(w, r)
	if !ok {
		return
	}
	cancelRequested, err := a.eng.KeepAlive(r.Context(), j)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeepAliveResponse{CancelRequested: cancelRequested, Job: j})
}

func (a *API) complete(w http.ResponseWriter, r *http.Request) {
	qt, err := queueTypeParam(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req CompleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, err)
		return
	}
	if err := checkLeased(req.Job, qt); err != nil {
		fail(w, err)
		return
	}
	if err := a.eng.Complete(r.Context(), req.Job, req.RequestCancellationOnFailure); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req.Job)
}

func (a *API) leasedJob(w http.ResponseWriter, r *http.Request) (*job.Job, bool) {
	qt, err := queueTypeParam(r)
	if err != nil {
		fail(w, err)
		return nil, false
	}
	var j job.Job
	if err := decodeBody(w, r, &j); err != nil {
		fail(w, err)
		return nil, false
	}
	if err := checkLeased(&j, qt); err != nil {
		fail(w, err)
		return nil, false
	}
	return &j, true
}

func checkLeased(j *job.Job, qt job.QueueType) error {
	if j == nil {
		return fmt.Errorf("%w: job is required", errBadRequest)
	}
	if j.QueueType != qt {
		return fmt.Errorf("%w: job belongs to queue type %d", errBadRequest, j.QueueType)
	}
	if j.Version == 0 {
		return fmt.Errorf("%w: job %d carries no lease", errBadRequest, j.ID)
	}
	return nil
}
