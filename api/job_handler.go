package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/lakequeue/engine"
	"github.com/xraph/lakequeue/job"
)

func (a *API) enqueue(w http.ResponseWriter, r *http.Request) {
	qt, err := queueTypeParam(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req EnqueueRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, err)
		return
	}

	opts := []engine.EnqueueOption{
		engine.ForceOneActiveGroup(req.ForceOneActiveGroup),
		engine.MarkCompleted(req.IsCompleted),
	}
	if req.GroupID != nil {
		opts = append(opts, engine.WithGroupID(*req.GroupID))
	}
	jobs, err := a.eng.Enqueue(r.Context(), qt, req.Definitions, opts...)
	if err != nil {
		fail(w, fmt.Errorf("enqueue: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	qt, err := queueTypeParam(r)
	if err != nil {
		fail(w, err)
		return
	}
	jobID, err := int64Param(r, "jobId")
	if err != nil {
		fail(w, err)
		return
	}
	j, err := a.eng.GetByID(r.Context(), qt, jobID, wantDefinition(r))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (a *API) getJobs(w http.ResponseWriter, r *http.Request) {
	qt, err := queueTypeParam(r)
	if err != nil {
		fail(w, err)
		return
	}
	ids, err := idsQuery(r)
	if err != nil {
		fail(w, err)
		return
	}
	jobs, err := a.eng.GetByIDs(r.Context(), qt, ids, wantDefinition(r))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(jobs))
}

func (a *API) getGroup(w http.ResponseWriter, r *http.Request) {
	qt, err := queueTypeParam(r)
	if err != nil {
		fail(w, err)
		return
	}
	groupID, err := int64Param(r, "groupId")
	if err != nil {
		fail(w, err)
		return
	}
	jobs, err := a.eng.GetByGroupID(r.Context(), qt, groupID, wantDefinition(r))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(jobs))
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	qt, err := queueTypeParam(r)
	if err != nil {
		fail(w, err)
		return
	}
	jobID, err := int64Param(r, "jobId")
	if err != nil {
		fail(w, err)
		return
	}
	if err := a.eng.CancelByID(r.Context(), qt, jobID); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) cancelGroup(w http.ResponseWriter, r *http.Request) {
	qt, err := queueTypeParam(r)
	if err != nil {
		fail(w, err)
		return
	}
	groupID, err := int64Param(r, "groupId")
	if err != nil {
		fail(w, err)
		return
	}
	if err := a.eng.CancelByGroupID(r.Context(), qt, groupID); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil makes empty results encode as [] rather than null.
func nonNil(jobs []*job.Job) []*job.Job {
	if jobs == nil {
		return []*job.Job{}
	}
	return jobs
}
