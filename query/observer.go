package query

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Observer is a mounted subscriber to one key. While open it keeps the entry
// eligible for refetch on invalidation and drives polling.
type Observer struct {
	id    string
	cache *Cache
	key   Key
	opts  Options

	mu      sync.Mutex
	updates chan Result
	closed  bool
	stop    chan struct{}
}

// Observe mounts an observer on key and starts a fetch if the entry has no
// fresh data.
func (c *Cache) Observe(key Key, fetcher Fetcher, opts Options) *Observer {
	o := &Observer{
		id:      uuid.NewString(),
		cache:   c,
		key:     key,
		opts:    opts,
		updates: make(chan Result, 1),
		stop:    make(chan struct{}),
	}

	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetcher, e.staleTime = fetcher, opts.StaleTime
	e.observers[o.id] = o
	if !opts.Disabled && c.staleLocked(e) {
		c.startLocked(e, c.ctx, false, true)
	}
	results := c.resultsLocked(e)
	c.mu.Unlock()
	deliver(results)

	if !opts.Disabled && opts.RefetchInterval > 0 {
		go o.poll(opts.RefetchInterval)
	}
	return o
}

// Key returns the observed key.
func (o *Observer) Key() Key {
	return o.key
}

// Result returns the current state of the observed entry.
func (o *Observer) Result() Result {
	c := o.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultLocked(c.entryLocked(o.key))
}

// Updates delivers the latest Result after every change. Only the most recent
// undelivered Result is kept. The channel is closed by Close.
func (o *Observer) Updates() <-chan Result {
	return o.updates
}

// Refetch forces a new fetch and waits for it.
func (o *Observer) Refetch(ctx context.Context) error {
	if o.opts.Disabled {
		return nil
	}

	c := o.cache
	c.mu.Lock()
	e := c.entryLocked(o.key)
	cl := c.startLocked(e, c.ctx, true, true)
	results := c.resultsLocked(e)
	c.mu.Unlock()
	deliver(results)

	select {
	case <-cl.done:
		return cl.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unmounts the observer. A fetch it started that completes afterwards is
// discarded if no other observer remains.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.stop)
	close(o.updates)
	o.mu.Unlock()

	c := o.cache
	c.mu.Lock()
	if e, ok := c.entries[o.key.String()]; ok {
		delete(e.observers, o.id)
	}
	c.mu.Unlock()
}

func (o *Observer) poll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			c := o.cache
			c.mu.Lock()
			e := c.entryLocked(o.key)
			c.startLocked(e, c.ctx, false, true)
			results := c.resultsLocked(e)
			c.mu.Unlock()
			deliver(results)
		}
	}
}

func (o *Observer) deliver(r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case <-o.updates:
	default:
	}
	o.updates <- r
}
