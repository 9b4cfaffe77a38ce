// Package query is a client-side read cache keyed by resource identity. It
// de-duplicates in-flight reads, serves stale data while revalidating and
// refetches invalidated entries that still have observers.
package query

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Fetcher loads the value for a key.
type Fetcher func(ctx context.Context) (any, error)

// Options control caching for one key.
type Options struct {
	StaleTime       time.Duration // Data younger than this is served without a fetch
	Disabled        bool          // Never fetch; Result reports whatever is cached
	RefetchInterval time.Duration // Poll while observed; zero disables polling
}

// Result is a point-in-time view of an entry.
type Result struct {
	Data       any
	HasData    bool
	Err        error // Last fetch error; Data keeps the last good value
	IsLoading  bool  // A fetch is running and there is no data yet
	IsFetching bool  // A fetch is running
	IsStale    bool
	UpdatedAt  time.Time
}

type call struct {
	done           chan struct{}
	gen            uint64
	observerDriven bool
	data           any
	err            error
}

type entry struct {
	key       Key
	staleTime time.Duration
	fetcher   Fetcher

	data        any
	hasData     bool
	err         error
	updatedAt   time.Time
	invalidated bool

	inflight    *call
	gen         uint64 // Last issued request number
	appliedGen  uint64 // Request number of the value currently held
	invalidGen  uint64 // Requests up to this number predate the last invalidation

	observers map[string]*Observer
}

// Cache holds entries for every key seen.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	ctx     context.Context
	nowFunc func() time.Time
	logger  zerolog.Logger
}

// Option defines a function type to modify the Cache instance.
type Option func(*Cache)

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

// WithContext sets the context background fetches run under.
func WithContext(ctx context.Context) Option {
	return func(c *Cache) {
		c.ctx = ctx
	}
}

func New(options ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		ctx:     context.Background(),
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Fetch returns the value for key. Fresh data is returned at once. A running
// fetch is joined. Stale data is returned at once while a refetch runs in the
// background. Invalidated or missing data waits for a fetch. The fetch itself
// is not cancelled when ctx is; only the wait is.
func (c *Cache) Fetch(ctx context.Context, key Key, fetcher Fetcher, opts Options) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetcher, e.staleTime = fetcher, opts.StaleTime

	if opts.Disabled {
		data, err := e.data, e.err
		c.mu.Unlock()
		return data, err
	}
	if e.hasData && !c.staleLocked(e) {
		data := e.data
		c.mu.Unlock()
		return data, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	if e.hasData && !e.invalidated {
		data := e.data
		c.startLocked(e, fetchCtx, false, false)
		results := c.resultsLocked(e)
		c.mu.Unlock()
		deliver(results)
		return data, nil
	}

	cl := c.startLocked(e, fetchCtx, false, false)
	results := c.resultsLocked(e)
	c.mu.Unlock()
	deliver(results)

	select {
	case <-cl.done:
		return cl.data, cl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek returns the current result for key without fetching.
func (c *Cache) Peek(key Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return Result{}, false
	}
	return c.resultLocked(e), true
}

// Invalidate marks every entry whose key starts with one of keys as stale.
// Entries with active observers start a refetch before the lock is released,
// so no read can observe the pre-invalidation value as fresh.
func (c *Cache) Invalidate(keys ...Key) {
	var results []observerResult

	c.mu.Lock()
	for _, e := range c.entries {
		if !matchesAny(e.key, keys) {
			continue
		}
		e.invalidated = true
		e.invalidGen = e.gen
		if e.fetcher != nil && enabledObservers(e) > 0 {
			c.startLocked(e, c.ctx, true, true)
			results = append(results, c.resultsLocked(e)...)
		}
	}
	c.mu.Unlock()

	deliver(results)
}

// Mutate runs fn and, when it succeeds, invalidates keys.
func (c *Cache) Mutate(ctx context.Context, fn func(ctx context.Context) (any, error), invalidates ...Key) (any, error) {
	data, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	c.Invalidate(invalidates...)
	return data, nil
}

func matchesAny(key Key, prefixes []Key) bool {
	for _, p := range prefixes {
		if key.HasPrefix(p) {
			return true
		}
	}
	return false
}

func (c *Cache) entryLocked(key Key) *entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key, observers: make(map[string]*Observer)}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) staleLocked(e *entry) bool {
	if !e.hasData {
		return true
	}
	return e.invalidated || c.nowFunc().Sub(e.updatedAt) >= e.staleTime
}

// startLocked joins the running fetch, or starts a new one when none is
// running, the running one predates an invalidation, or force is set. A new
// fetch supersedes the running one.
func (c *Cache) startLocked(e *entry, ctx context.Context, force, observerDriven bool) *call {
	outdated := e.inflight != nil && e.invalidated && e.inflight.gen <= e.invalidGen
	if e.inflight != nil && !force && !outdated {
		if !observerDriven {
			e.inflight.observerDriven = false
		}
		return e.inflight
	}

	e.gen++
	cl := &call{done: make(chan struct{}), gen: e.gen, observerDriven: observerDriven}
	e.inflight = cl
	go c.run(ctx, e, cl, e.fetcher)
	return cl
}

func (c *Cache) run(ctx context.Context, e *entry, cl *call, fetcher Fetcher) {
	data, err := fetcher(ctx)

	c.mu.Lock()
	cl.data, cl.err = data, err
	if e.inflight == cl {
		e.inflight = nil
	}

	switch {
	case cl.gen <= e.appliedGen:
		c.logger.Debug().Str("key", e.key.String()).Uint64("gen", cl.gen).Msg("discarding out-of-order result")
	case cl.observerDriven && len(e.observers) == 0:
		c.logger.Debug().Str("key", e.key.String()).Msg("discarding result for unobserved key")
	default:
		e.appliedGen = cl.gen
		if err != nil {
			e.err = err
			c.logger.Debug().Err(err).Str("key", e.key.String()).Msg("fetch failed")
		} else {
			e.data, e.hasData, e.err = data, true, nil
			e.updatedAt = c.nowFunc()
			if cl.gen > e.invalidGen {
				e.invalidated = false
			}
		}
	}
	results := c.resultsLocked(e)
	c.mu.Unlock()

	close(cl.done)
	deliver(results)
}

func (c *Cache) resultLocked(e *entry) Result {
	return Result{
		Data:       e.data,
		HasData:    e.hasData,
		Err:        e.err,
		IsLoading:  e.inflight != nil && !e.hasData,
		IsFetching: e.inflight != nil,
		IsStale:    c.staleLocked(e),
		UpdatedAt:  e.updatedAt,
	}
}

type observerResult struct {
	observer *Observer
	result   Result
}

func (c *Cache) resultsLocked(e *entry) []observerResult {
	if len(e.observers) == 0 {
		return nil
	}
	r := c.resultLocked(e)
	out := make([]observerResult, 0, len(e.observers))
	for _, o := range e.observers {
		out = append(out, observerResult{observer: o, result: r})
	}
	return out
}

func deliver(results []observerResult) {
	for _, r := range results {
		r.observer.deliver(r.result)
	}
}

func enabledObservers(e *entry) int {
	n := 0
	for _, o := range e.observers {
		if !o.opts.Disabled {
			n++
		}
	}
	return n
}
