package client

import (
	"context"
	"net/http"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/api"
	"github.com/xraph/lakequeue/job"
)

// Dequeue leases the next job. It returns (nil, nil) when nothing is
// runnable and lakequeue.ErrMessageDiscarded when the daemon dropped a
// message and the caller should poll again.
func (c *Client) Dequeue(ctx context.Context, qt job.QueueType, workerID string, heartbeatTimeoutSeconds int64) (*job.Job, error) {
	req := api.DequeueRequest{WorkerID: workerID, HeartbeatTimeoutSeconds: heartbeatTimeoutSeconds}
	var j job.Job
	hdr, err := c.do(ctx, http.MethodPost, queuePath(qt, "/leases"), req, &j)
	if err != nil {
		return nil, err
	}
	if hdr.Get(api.HeaderDiscarded) != "" {
		return nil, lakequeue.ErrMessageDiscarded
	}
	if j.ID == 0 && j.Version == 0 {
		return nil, nil //nolint:nilnil // empty queue
	}
	return &j, nil
}

// KeepAlive renews the lease on j and stores j.Result as progress. It
// reports whether cancellation was requested. j is updated in place.
func (c *Client) KeepAlive(ctx context.Context, j *job.Job) (bool, error) {
	var resp api.KeepAliveResponse
	if _, err := c.do(ctx, http.MethodPost, queuePath(j.QueueType, "/leases/keepalive"), j, &resp); err != nil {
		return false, err
	}
	if resp.Job != nil {
		*j = *resp.Job
	}
	return resp.CancelRequested, nil
}

// Complete finalizes the job leased as j. j is updated to the final
// record.
func (c *Client) Complete(ctx context.Context, j *job.Job, requestCancellationOnFailure bool) error {
	req := api.CompleteRequest{Job: j, RequestCancellationOnFailure: requestCancellationOnFailure}
	var done job.Job
	if _, err := c.do(ctx, http.MethodPost, queuePath(j.QueueType, "/leases/complete"), req, &done); err != nil {
		return err
	}
	*j = done
	return nil
}
