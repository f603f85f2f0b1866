package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/cron"
	"github.com/xraph/lakequeue/job"
)

// maxBody bounds request bodies: a full batch of maximum-size records.
const maxBody = 64 << 20

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: codeFor(err)})
}

// fail maps err to a status code and writes it.
func fail(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

// errorCodes maps sentinel errors to their wire code and status. The
// client maps the codes back.
var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{errBadRequest, CodeBadRequest, http.StatusBadRequest},
	{lakequeue.ErrInvalidGroupID, CodeInvalidGroupID, http.StatusBadRequest},
	{lakequeue.ErrBatchTooLarge, CodeBatchTooLarge, http.StatusBadRequest},
	{lakequeue.ErrJobNotFound, CodeJobNotFound, http.StatusNotFound},
	{cron.ErrEntryNotFound, CodeEntryNotFound, http.StatusNotFound},
	{lakequeue.ErrLeaseLost, CodeLeaseLost, http.StatusConflict},
	{lakequeue.ErrConcurrencyExhausted, CodeConcurrencyExhausted, http.StatusConflict},
	{lakequeue.ErrCapacityExceeded, CodeCapacityExceeded, http.StatusRequestEntityTooLarge},
	{lakequeue.ErrNoStore, CodeUnavailable, http.StatusServiceUnavailable},
	{lakequeue.ErrNoQueue, CodeUnavailable, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.status
		}
	}
	return http.StatusInternalServerError
}

func codeFor(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", errBadRequest, err)
	}
	return nil
}

func queueTypeParam(r *http.Request) (job.QueueType, error) {
	raw := chi.URLParam(r, "queueType")
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid queue type %q", errBadRequest, raw)
	}
	return job.QueueType(n), nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return n, nil
}

func idsQuery(r *http.Request) ([]int64, error) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid id %q", errBadRequest, p)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

func wantDefinition(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("definition"))
	return v
}
