package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/lakequeue/api"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetry retries requests that failed in transit or with a 5xx status,
// up to maxRetries times with exponential backoff from baseDelay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

// EnqueueOption configures an Enqueue call.
type EnqueueOption func(*api.EnqueueRequest)

// WithGroupID places the jobs in group g.
func WithGroupID(g int64) EnqueueOption {
	return func(r *api.EnqueueRequest) { r.GroupID = &g }
}
