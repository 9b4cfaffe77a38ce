// Package transport is the single configured HTTP client used by every resource client.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CredentialSource supplies the bearer credential for outgoing requests.
// An empty credential means the request is sent anonymously.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Credential(ctx context.Context) (string, error) {
	return f(ctx)
}

// Request describes one call to the backend.
type Request struct {
	Method     string
	Path       string     // Joined to the base URL, e.g. "/b/projects/"
	Query      url.Values // Optional query parameters
	Body       any        // JSON encodable value or *Multipart
	Credential string     // Overrides the CredentialSource for this call only
}

// Client attaches credentials, sends requests and normalizes failures.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	credentials   CredentialSource
	onAuthFailure func(status int)
	logger        zerolog.Logger
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithCredentials(source CredentialSource) Option {
	return func(c *Client) {
		c.credentials = source
	}
}

// WithAuthFailureHandler registers a callback for 401/403 responses. The call
// itself still returns its error; redirecting is up to the caller.
func WithAuthFailureHandler(handler func(status int)) Option {
	return func(c *Client) {
		c.onAuthFailure = handler
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a transport for the given backend base URL.
func New(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("[transport.New] baseURL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrap(err, "[transport.New] invalid baseURL")
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Send issues the request and returns the raw response body on success.
func (c *Client) Send(ctx context.Context, req Request) ([]byte, error) {
	body, _, err := c.send(ctx, req)
	return body, err
}

// Do issues the request and decodes a JSON response into out (if non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, status, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return Normalize(status, body, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req Request) ([]byte, int, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", req.Path).Msg("request not sent")
		return nil, 0, encodeError(err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", httpReq.Method).Str("path", req.Path).Msg("request failed without response")
		return nil, 0, Normalize(0, nil, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, Normalize(0, nil, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.logger.Warn().Str("method", httpReq.Method).Str("path", req.Path).Int("status", resp.StatusCode).Msg("authentication failure")
		if c.onAuthFailure != nil {
			c.onAuthFailure(resp.StatusCode)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, resp.StatusCode, Normalize(resp.StatusCode, body, nil)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + "/" + strings.TrimPrefix(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch body := req.Body.(type) {
	case nil:
	case *Multipart:
		buf, ct, err := body.encode()
		if err != nil {
			return nil, err
		}
		reader, contentType = buf, ct
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.newRequest] json.Marshal")
		}
		reader, contentType = bytes.NewReader(encoded), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.newRequest] http.NewRequest")
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if credential := c.credential(ctx, req); credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+credential)
	}
	return httpReq, nil
}

func (c *Client) credential(ctx context.Context, req Request) string {
	if req.Credential != "" {
		return req.Credential
	}
	if c.credentials == nil {
		return ""
	}
	credential, err := c.credentials.Credential(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("credential unavailable, sending anonymously")
		return ""
	}
	return credential
}
