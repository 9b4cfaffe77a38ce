// Package testruns is the resource client for test runs and performance data.
package testruns

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-api-dashboard/internal/validation"
	"github.com/jrsteele09/go-api-dashboard/projects"
	"github.com/jrsteele09/go-api-dashboard/transport"
)

// Client issues test run requests. Runs are append-only, so there is no update.
type Client struct {
	transport transport.Doer
}

func NewClient(t transport.Doer) (*Client, error) {
	if t == nil {
		return nil, errors.New("[testruns.NewClient] transport is required")
	}
	return &Client{transport: t}, nil
}

// RunTests starts a run and returns its record.
func (c *Client) RunTests(ctx context.Context, projectID string, cfg RunConfig) (*TestRun, error) {
	path, err := runsPath(projectID)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(cfg); err != nil {
		return nil, err
	}
	var run TestRun
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodPost, Path: path, Body: cfg}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) GetAll(ctx context.Context, projectID string) ([]TestRun, error) {
	path, err := runsPath(projectID)
	if err != nil {
		return nil, err
	}
	var page transport.Page[TestRun]
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodGet, Path: path}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) GetByID(ctx context.Context, projectID, runID string) (*TestRun, error) {
	path, err := runPath(projectID, runID)
	if err != nil {
		return nil, err
	}
	var run TestRun
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodGet, Path: path}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) Remove(ctx context.Context, projectID, runID string) error {
	path, err := runPath(projectID, runID)
	if err != nil {
		return err
	}
	return c.transport.Do(ctx, transport.Request{Method: http.MethodDelete, Path: path}, nil)
}

// GetPerformance returns aggregated metrics. An empty range means the last 7 days.
func (c *Client) GetPerformance(ctx context.Context, projectID string, r Range) (*Performance, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, validation.Field("project_uuid", "project id is required.")
	}
	if r == "" {
		r = Range7d
	}
	if !r.Valid() {
		return nil, validation.Field("range", "range must be one of: 24h, 7d, 30d, 90d.")
	}
	var perf Performance
	req := transport.Request{
		Method: http.MethodGet,
		Path:   projects.ProjectPath(projectID) + "performance/",
		Query:  url.Values{"range": {string(r)}},
	}
	if err := c.transport.Do(ctx, req, &perf); err != nil {
		return nil, err
	}
	if perf.Range == "" {
		perf.Range = r
	}
	return &perf, nil
}

func runsPath(projectID string) (string, error) {
	if strings.TrimSpace(projectID) == "" {
		return "", validation.Field("project_uuid", "project id is required.")
	}
	return projects.ProjectPath(projectID) + "test-runs/", nil
}

func runPath(projectID, runID string) (string, error) {
	path, err := runsPath(projectID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(runID) == "" {
		return "", validation.Field("run_id", "test run id is required.")
	}
	return path + url.PathEscape(runID), nil
}
