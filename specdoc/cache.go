// Package specdoc fetches OpenAPI documents by URL and keeps them in the
// durable store with a soft time-to-live.
package specdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-api-dashboard/internal/errors"
	"github.com/jrsteele09/go-api-dashboard/kvstore"
)

const (
	keyPrefix              = "openapi:"
	DefaultTTL             = time.Hour
	DefaultMaxDocumentSize = 10 << 20
)

// ErrDocumentTooLarge is returned when a download exceeds the size limit.
var ErrDocumentTooLarge = errors.New("document too large")

type entry struct {
	FetchedAt time.Time `json:"fetchedAt"`
	Raw       string    `json:"raw"`
}

type Cache struct {
	store      kvstore.Store
	httpClient *http.Client
	ttl        time.Duration
	maxSize    int64
	nowFunc    func() time.Time
	logger     zerolog.Logger
}

// Option defines a function type to modify the Cache instance.
type Option func(*Cache)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Cache) {
		c.httpClient = httpClient
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithMaxDocumentSize caps the bytes read from a single download.
func WithMaxDocumentSize(n int64) Option {
	return func(c *Cache) {
		c.maxSize = n
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func New(store kvstore.Store, options ...Option) (*Cache, error) {
	if store == nil {
		return nil, errors.New("[specdoc.New] store is required")
	}
	c := &Cache{
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ttl:        DefaultTTL,
		maxSize:    DefaultMaxDocumentSize,
		nowFunc:    time.Now,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Key returns the store key for a document URL.
func Key(url string) string {
	return keyPrefix + url
}

// Get returns the document at url. A stored copy younger than the TTL is used
// as is. An older copy is refetched, and returned as is if the refetch fails.
func (c *Cache) Get(ctx context.Context, url string) (*Document, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.Wrap(apperrors.ErrValidation, "[Cache.Get] url is required")
	}

	cached, fetchedAt := c.load(url)
	if cached != nil && c.nowFunc().Sub(fetchedAt) < c.ttl {
		return cached, nil
	}

	raw, err := c.download(ctx, url)
	if err == nil {
		var doc *Document
		if doc, err = Parse(raw); err == nil {
			c.save(url, raw)
			return doc, nil
		}
	}
	if cached != nil {
		c.logger.Warn().Err(err).Str("url", url).Time("fetchedAt", fetchedAt).Msg("serving stale spec document")
		return cached, nil
	}
	return nil, err
}

// Invalidate drops the stored copy of url.
func (c *Cache) Invalidate(url string) error {
	if err := c.store.Delete(Key(url)); err != nil {
		return errors.Wrap(err, "[Cache.Invalidate] store.Delete")
	}
	return nil
}

// load returns nil for a missing or unreadable entry.
func (c *Cache) load(url string) (*Document, time.Time) {
	value, ok, err := c.store.Get(Key(url))
	if err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("reading cached spec document")
		return nil, time.Time{}
	}
	if !ok {
		return nil, time.Time{}
	}
	var e entry
	if err := json.Unmarshal(value, &e); err != nil {
		c.logger.Debug().Err(err).Str("url", url).Msg("ignoring corrupt spec document entry")
		return nil, time.Time{}
	}
	doc, err := Parse([]byte(e.Raw))
	if err != nil {
		c.logger.Debug().Err(err).Str("url", url).Msg("ignoring unparsable spec document entry")
		return nil, time.Time{}
	}
	return doc, e.FetchedAt
}

func (c *Cache) save(url string, raw []byte) {
	value, err := json.Marshal(entry{FetchedAt: c.nowFunc(), Raw: string(raw)})
	if err == nil {
		err = c.store.Set(Key(url), value)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("storing spec document")
	}
}

func (c *Cache) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrValidation, err.Error())
	}
	req.Header.Set("Accept", "application/json, application/yaml, text/yaml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Cache.download] httpClient.Do")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "[Cache.download] reading body")
	}
	if int64(len(body)) > c.maxSize {
		return nil, errors.Wrapf(ErrDocumentTooLarge, "[Cache.download] %s exceeds %d bytes", url, c.maxSize)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[Cache.download] unexpected status %d from %s", resp.StatusCode, url)
	}
	return body, nil
}
