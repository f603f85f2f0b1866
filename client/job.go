package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/xraph/lakequeue/api"
	"github.com/xraph/lakequeue/job"
)

// Enqueue creates a job per definition, or returns the existing job for
// definitions already queued.
func (c *Client) Enqueue(ctx context.Context, qt job.QueueType, definitions []string, opts ...EnqueueOption) ([]*job.Job, error) {
	req := api.EnqueueRequest{Definitions: definitions}
	for _, opt := range opts {
		opt(&req)
	}
	var jobs []*job.Job
	if _, err := c.do(ctx, http.MethodPost, queuePath(qt, "/jobs"), req, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetByID returns one job.
func (c *Client) GetByID(ctx context.Context, qt job.QueueType, id int64, returnDefinition bool) (*job.Job, error) {
	var j job.Job
	path := queuePath(qt, "/jobs/"+strconv.FormatInt(id, 10)) + definitionQuery(returnDefinition, "?")
	if _, err := c.do(ctx, http.MethodGet, path, nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetByIDs returns jobs in the order of ids.
func (c *Client) GetByIDs(ctx context.Context, qt job.QueueType, ids []int64, returnDefinition bool) ([]*job.Job, error) {
	if len(ids) == 0 {
		return []*job.Job{}, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	path := queuePath(qt, "/jobs?ids="+url.QueryEscape(strings.Join(parts, ","))) + definitionQuery(returnDefinition, "&")
	var jobs []*job.Job
	if _, err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetByGroupID returns every job in a group, ordered by id.
func (c *Client) GetByGroupID(ctx context.Context, qt job.QueueType, groupID int64, returnDefinition bool) ([]*job.Job, error) {
	path := queuePath(qt, "/groups/"+strconv.FormatInt(groupID, 10)+"/jobs") + definitionQuery(returnDefinition, "?")
	var jobs []*job.Job
	if _, err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CancelByID requests cancellation of one job.
func (c *Client) CancelByID(ctx context.Context, qt job.QueueType, id int64) error {
	_, err := c.do(ctx, http.MethodPost, queuePath(qt, "/jobs/"+strconv.FormatInt(id, 10)+"/cancel"), nil, nil)
	return err
}

// CancelByGroupID requests cancellation of every job in a group.
func (c *Client) CancelByGroupID(ctx context.Context, qt job.QueueType, groupID int64) error {
	_, err := c.do(ctx, http.MethodPost, queuePath(qt, "/groups/"+strconv.FormatInt(groupID, 10)+"/cancel"), nil, nil)
	return err
}

func queuePath(qt job.QueueType, rest string) string {
	return fmt.Sprintf("/v1/queues/%d%s", qt, rest)
}

func definitionQuery(returnDefinition bool, sep string) string {
	if !returnDefinition {
		return ""
	}
	return sep + "definition=true"
}
