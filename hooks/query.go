package hooks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-api-dashboard/query"
	"github.com/jrsteele09/go-api-dashboard/uistate"
)

// Result is a typed point-in-time view of a query.
type Result[T any] struct {
	Data       T
	HasData    bool
	Err        error
	IsLoading  bool
	IsFetching bool
	IsStale    bool
	UpdatedAt  time.Time
}

// Query is a mounted, typed read of one cache key. Close it when the view
// that owns it goes away.
type Query[T any] struct {
	cache    *query.Cache
	key      query.Key
	fetcher  query.Fetcher
	opts     query.Options
	observer *query.Observer

	once    sync.Once
	updates chan Result[T]
}

func newQuery[T any](cache *query.Cache, key query.Key, fetch func(ctx context.Context) (T, error), opts query.Options) *Query[T] {
	fetcher := func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return &Query[T]{
		cache:    cache,
		key:      key,
		fetcher:  fetcher,
		opts:     opts,
		observer: cache.Observe(key, fetcher, opts),
	}
}

func (q *Query[T]) Key() query.Key {
	return q.key
}

func (q *Query[T]) Result() Result[T] {
	return convert[T](q.observer.Result())
}

// Get waits for a settled value. It joins the fetch the query started rather
// than issuing a second one.
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	var zero T
	v, err := q.cache.Fetch(ctx, q.key, q.fetcher, q.opts)
	if err != nil {
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}

// Updates delivers a Result after every change to the key, latest wins.
func (q *Query[T]) Updates() <-chan Result[T] {
	q.once.Do(func() {
		q.updates = make(chan Result[T], 1)
		go func() {
			defer close(q.updates)
			for r := range q.observer.Updates() {
				select {
				case <-q.updates:
				default:
				}
				q.updates <- convert[T](r)
			}
		}()
	})
	return q.updates
}

func (q *Query[T]) Refetch(ctx context.Context) error {
	return q.observer.Refetch(ctx)
}

func (q *Query[T]) Close() {
	q.observer.Close()
}

func convert[T any](r query.Result) Result[T] {
	out := Result[T]{
		HasData:    r.HasData,
		Err:        r.Err,
		IsLoading:  r.IsLoading,
		IsFetching: r.IsFetching,
		IsStale:    r.IsStale,
		UpdatedAt:  r.UpdatedAt,
	}
	if v, ok := r.Data.(T); ok {
		out.Data = v
	}
	return out
}

// Mutation is a write that invalidates dependent keys when it succeeds and
// raises an error banner when it fails.
type Mutation[In, Out any] struct {
	cache       *query.Cache
	ui          *uistate.Store
	fn          func(ctx context.Context, in In) (Out, error)
	invalidates func(in In) []query.Key
	running     atomic.Int32
}

func newMutation[In, Out any](h *Hooks, fn func(ctx context.Context, in In) (Out, error), invalidates func(in In) []query.Key) *Mutation[In, Out] {
	return &Mutation[In, Out]{cache: h.cache, ui: h.ui, fn: fn, invalidates: invalidates}
}

func (m *Mutation[In, Out]) Do(ctx context.Context, in In) (Out, error) {
	m.running.Add(1)
	defer m.running.Add(-1)

	var zero Out
	v, err := m.cache.Mutate(ctx, func(ctx context.Context) (any, error) {
		out, err := m.fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return out, nil
	}, m.invalidates(in)...)
	if err != nil {
		if m.ui != nil {
			m.ui.NotifyError(err)
		}
		return zero, err
	}
	out, _ := v.(Out)
	return out, nil
}

// IsLoading reports whether a Do call is running.
func (m *Mutation[In, Out]) IsLoading() bool {
	return m.running.Load() > 0
}
