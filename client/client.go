// Package client is a Go client for a remote lakequeue daemon's HTTP API.
//
// Usage:
//
//	c := client.New("http://lakequeued:8080")
//
//	// Enqueue two jobs in group 7 of queue type 3.
//	jobs, err := c.Enqueue(ctx, 3, []string{defA, defB}, client.WithGroupID(7))
//
//	// Poll their state.
//	jobs, err = c.GetByGroupID(ctx, 3, 7, false)
//
// *Client implements worker.JobSource, so a worker.Host can run jobs
// leased from a remote daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xraph/lakequeue"
	"github.com/xraph/lakequeue/api"
	"github.com/xraph/lakequeue/backoff"
	"github.com/xraph/lakequeue/cron"
)

// Client talks to a lakequeue daemon over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	maxRetries int
	baseDelay  time.Duration
	backoff    backoff.Strategy
}

// New creates a Client for the daemon at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.backoff = backoff.NewExponentialWithJitter(c.baseDelay, 30*c.baseDelay)
	return c
}

// APIError is a non-2xx response whose code maps to no sentinel.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lakequeue/client: %d %s: %s", e.Status, e.Code, e.Message)
}

var sentinels = map[string]error{
	api.CodeInvalidGroupID:       lakequeue.ErrInvalidGroupID,
	api.CodeBatchTooLarge:        lakequeue.ErrBatchTooLarge,
	api.CodeJobNotFound:          lakequeue.ErrJobNotFound,
	api.CodeEntryNotFound:        cron.ErrEntryNotFound,
	api.CodeLeaseLost:            lakequeue.ErrLeaseLost,
	api.CodeConcurrencyExhausted: lakequeue.ErrConcurrencyExhausted,
	api.CodeCapacityExceeded:     lakequeue.ErrCapacityExceeded,
}

// Ping checks that the daemon can reach its record store.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	return err
}

// do sends a request and decodes a JSON response into out when out is
// non-nil. It returns the response headers.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (http.Header, error) {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return nil, fmt.Errorf("lakequeue/client: marshal %s %s: %w", method, path, err)
		}
	}

	for attempt := 0; ; attempt++ {
		hdr, status, err := c.once(ctx, method, path, body, out)
		if err == nil {
			return hdr, nil
		}
		retryable := status == 0 || status >= http.StatusInternalServerError
		if !retryable || attempt >= c.maxRetries || ctx.Err() != nil {
			return hdr, err
		}
		c.logger.Debug("retrying request",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		if sleepErr := backoff.Sleep(ctx, c.backoff.Delay(attempt+1)); sleepErr != nil {
			return hdr, err
		}
	}
}

// once performs a single round trip. status is 0 when the request never
// got a response.
func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) (http.Header, int, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, 0, fmt.Errorf("lakequeue/client: %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("lakequeue/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.Header, resp.StatusCode, decodeError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, resp.StatusCode, fmt.Errorf("lakequeue/client: decode %s %s: %w", method, path, err)
		}
	}
	return resp.Header, resp.StatusCode, nil
}

func decodeError(resp *http.Response) error {
	var er api.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &er); err != nil {
		er.Error = strings.TrimSpace(string(raw))
	}
	if s, ok := sentinels[er.Code]; ok {
		return fmt.Errorf("lakequeue/client: %s: %w", er.Error, s)
	}
	return &APIError{Status: resp.StatusCode, Code: er.Code, Message: er.Error}
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}
