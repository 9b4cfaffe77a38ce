// Package aimodels lists the AI models available for generating test runs.
package aimodels

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-api-dashboard/transport"
)

const modelsPath = "/b/aimodels/aimodels"

type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Provider    string `json:"provider,omitempty"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default"`
}

type Client struct {
	transport transport.Doer
}

func NewClient(t transport.Doer) (*Client, error) {
	if t == nil {
		return nil, errors.New("[aimodels.NewClient] transport is required")
	}
	return &Client{transport: t}, nil
}

func (c *Client) GetAll(ctx context.Context) ([]Model, error) {
	var page transport.Page[Model]
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodGet, Path: modelsPath}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// Default returns the model flagged as default, or the first one.
func Default(models []Model) (Model, bool) {
	for _, m := range models {
		if m.IsDefault {
			return m, true
		}
	}
	if len(models) > 0 {
		return models[0], true
	}
	return Model{}, false
}
