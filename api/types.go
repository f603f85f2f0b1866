package api

import "github.com/xraph/lakequeue/job"

// EnqueueRequest is the body of POST /v1/queues/{queueType}/jobs.
type EnqueueRequest struct {
	Definitions []string `json:"definitions"`
	GroupID     *int64   `json:"groupId,omitempty"`

	// Accepted for compatibility and ignored.
	ForceOneActiveGroup bool `json:"forceOneActiveGroup,omitempty"`
	IsCompleted         bool `json:"isCompleted,omitempty"`
}

// DequeueRequest is the body of POST /v1/queues/{queueType}/leases.
type DequeueRequest struct {
	WorkerID                string `json:"workerId"`
	HeartbeatTimeoutSeconds int64  `json:"heartbeatTimeoutSeconds"`
}

// KeepAliveResponse is returned by the keep-alive route.
type KeepAliveResponse struct {
	CancelRequested bool     `json:"cancelRequested"`
	Job             *job.Job `json:"job"`
}

// CompleteRequest is the body of the complete route.
type CompleteRequest struct {
	Job                          *job.Job `json:"job"`
	RequestCancellationOnFailure bool     `json:"requestCancellationOnFailure,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest           = "bad_request"
	CodeInvalidGroupID       = "invalid_group_id"
	CodeBatchTooLarge        = "batch_too_large"
	CodeJobNotFound          = "job_not_found"
	CodeEntryNotFound        = "entry_not_found"
	CodeLeaseLost            = "lease_lost"
	CodeConcurrencyExhausted = "concurrency_exhausted"
	CodeCapacityExceeded     = "capacity_exceeded"
	CodeUnavailable          = "unavailable"
	CodeInternal             = "internal"
)

// HeaderDiscarded is set on an empty dequeue response when a message was
// discarded and the caller should poll again at once.
const HeaderDiscarded = "X-Lakequeue-Discarded"
