// Package projects is the resource client for projects and their endpoints.
package projects

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-api-dashboard/internal/validation"
	"github.com/jrsteele09/go-api-dashboard/transport"
)

const basePath = "/b/projects/"

// Client issues project requests through the shared transport.
type Client struct {
	transport transport.Doer
}

func NewClient(t transport.Doer) (*Client, error) {
	if t == nil {
		return nil, errors.New("[projects.NewClient] transport is required")
	}
	return &Client{transport: t}, nil
}

func (c *Client) GetAll(ctx context.Context, params ListParams) (*transport.Page[Project], error) {
	var page transport.Page[Project]
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodGet, Path: basePath, Query: params.values()}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetByID(ctx context.Context, id string) (*Project, error) {
	path, err := projectPath(id)
	if err != nil {
		return nil, err
	}
	var p Project
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodGet, Path: path}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create applies defaults, validates, and only then sends the request.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*Project, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var p Project
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodPost, Path: basePath, Body: req.body()}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Update(ctx context.Context, id string, req UpdateRequest) (*Project, error) {
	path, err := projectPath(id)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var p Project
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodPatch, Path: path, Body: req.body()}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Remove(ctx context.Context, id string) error {
	path, err := projectPath(id)
	if err != nil {
		return err
	}
	return c.transport.Do(ctx, transport.Request{Method: http.MethodDelete, Path: path}, nil)
}

// ImportSpec replaces the project's OpenAPI document and re-imports its endpoints.
func (c *Client) ImportSpec(ctx context.Context, id string, source SpecSource) (*Project, error) {
	path, err := projectPath(id)
	if err != nil {
		return nil, err
	}
	if err := source.Validate(); err != nil {
		return nil, err
	}
	var p Project
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodPost, Path: path + "import-spec/", Body: source.body()}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetEndpoints(ctx context.Context, id string) ([]Endpoint, error) {
	path, err := projectPath(id)
	if err != nil {
		return nil, err
	}
	var page transport.Page[Endpoint]
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodGet, Path: path + "endpoints"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) GetEndpoint(ctx context.Context, id, endpointID string) (*Endpoint, error) {
	path, err := projectPath(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(endpointID) == "" {
		return nil, validation.Field("endpoint_id", "endpoint id is required.")
	}
	var e Endpoint
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodGet, Path: path + "endpoints/" + url.PathEscape(endpointID)}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ProjectPath returns the detail path for a project, e.g. "/b/projects/p1/".
func ProjectPath(id string) string {
	return basePath + url.PathEscape(id) + "/"
}

func projectPath(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", validation.Field("project_uuid", "project id is required.")
	}
	return ProjectPath(id), nil
}
