// Package users is the resource client for the backend user record and
// notification counters.
package users

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-api-dashboard/identity"
	"github.com/jrsteele09/go-api-dashboard/internal/validation"
	"github.com/jrsteele09/go-api-dashboard/transport"
)

const (
	usersPath       = "/b/user/users"
	mePath          = "/b/user/users/me/"
	unreadCountPath = "/b/user/notifications/unread-count/"
)

var _ identity.Registrar = (*Client)(nil)

type Client struct {
	transport transport.Doer
}

func NewClient(t transport.Doer) (*Client, error) {
	if t == nil {
		return nil, errors.New("[users.NewClient] transport is required")
	}
	return &Client{transport: t}, nil
}

// Register implements identity.Registrar. The credential is passed explicitly
// because the session is not established until registration succeeds.
func (c *Client) Register(ctx context.Context, credential string, principal identity.Principal) error {
	req := RegisterRequest{
		UID:         principal.ID,
		Email:       principal.Email,
		DisplayName: principal.DisplayName,
		PhotoURL:    principal.PhotoURL,
	}
	if err := validation.Struct(req); err != nil {
		return err
	}
	if strings.TrimSpace(credential) == "" {
		return errors.Wrap(identity.ErrUnknown, "[Client.Register] credential is required")
	}
	return c.transport.Do(ctx, transport.Request{Method: http.MethodPost, Path: usersPath, Body: req, Credential: credential}, nil)
}

// Me returns the current user's record.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodGet, Path: mePath}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Update(ctx context.Context, req UpdateRequest) (*User, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	var u User
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodPatch, Path: mePath, Body: req}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

type unreadCount struct {
	Count       *int `json:"count"`
	UnreadCount *int `json:"unread_count"`
}

// UnreadCount returns the number of unread notifications.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out unreadCount
	if err := c.transport.Do(ctx, transport.Request{Method: http.MethodGet, Path: unreadCountPath}, &out); err != nil {
		return 0, err
	}
	if out.UnreadCount != nil {
		return *out.UnreadCount, nil
	}
	if out.Count != nil {
		return *out.Count, nil
	}
	return 0, nil
}
