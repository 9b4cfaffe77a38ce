package specdoc_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-api-dashboard/internal/errors"
	"github.com/jrsteele09/go-api-dashboard/kvstore"
	"github.com/jrsteele09/go-api-dashboard/specdoc"
)

const petstoreYAML = `openapi: 3.0.3
info:
  title: Petstore
  version: 1.0.0
servers:
  - url: https://petstore.example.com/v1
paths:
  /pets:
    parameters:
      - name: limit
        in: query
    get:
      operationId: listPets
      summary: List pets
      tags: [pets]
    post:
      operationId: createPet
  /pets/{id}:
    delete:
      operationId: deletePet
      deprecated: true
`

type testFixture struct {
	hits   atomic.Int32
	fail   atomic.Bool
	now    time.Time
	store  *kvstore.Memory
	server *httptest.Server
	cache  *specdoc.Cache
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), store: kvstore.NewMemory()}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if f.fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		fmt.Fprint(w, petstoreYAML)
	}))
	t.Cleanup(f.server.Close)

	var err error
	f.cache, err = specdoc.New(f.store, specdoc.WithNowFunc(func() time.Time { return f.now }))
	require.NoError(t, err)
	return f
}

func (f *testFixture) url() string {
	return f.server.URL + "/openapi.yaml"
}

// TestGet_ServesWithinTTL tests that a stored document is reused without a network call
func TestGet_ServesWithinTTL(t *testing.T) {
	f := setupTestFixture(t)

	doc, err := f.cache.Get(context.Background(), f.url())
	require.NoError(t, err)
	require.Equal(t, "Petstore", doc.Info.Title)
	require.Equal(t, "3.0.3", doc.Version())
	require.Equal(t, "https://petstore.example.com/v1", doc.Servers[0].URL)

	f.now = f.now.Add(59 * time.Minute)
	_, err = f.cache.Get(context.Background(), f.url())
	require.NoError(t, err)
	require.Equal(t, int32(1), f.hits.Load())

	raw, ok, err := f.store.Get(specdoc.Key(f.url()))
	require.NoError(t, err)
	require.True(t, ok)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Contains(t, stored, "fetchedAt")
	require.Contains(t, stored, "raw")
}

// TestGet_SoftTTL tests refetching after expiry and falling back to the stale copy when that fails
func TestGet_SoftTTL(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.cache.Get(context.Background(), f.url())
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.cache.Get(context.Background(), f.url())
	require.NoError(t, err)
	require.Equal(t, int32(2), f.hits.Load())

	f.now = f.now.Add(2 * time.Hour)
	f.fail.Store(true)
	doc, err := f.cache.Get(context.Background(), f.url())
	require.NoError(t, err)
	require.Equal(t, "Petstore", doc.Info.Title)
	require.Equal(t, int32(3), f.hits.Load())
}

func TestGet_FailsWithoutCopy(t *testing.T) {
	f := setupTestFixture(t)
	f.fail.Store(true)

	_, err := f.cache.Get(context.Background(), f.url())
	require.Error(t, err)

	_, err = f.cache.Get(context.Background(), " ")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

// TestGet_RejectsOversizedDocument tests that a document over the limit fails instead of being truncated
func TestGet_RejectsOversizedDocument(t *testing.T) {
	f := setupTestFixture(t)
	size := int64(len(petstoreYAML))

	cache, err := specdoc.New(f.store, specdoc.WithMaxDocumentSize(size-1))
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), f.url())
	require.ErrorIs(t, err, specdoc.ErrDocumentTooLarge)
	_, ok, err := f.store.Get(specdoc.Key(f.url()))
	require.NoError(t, err)
	require.False(t, ok)

	cache, err = specdoc.New(f.store, specdoc.WithMaxDocumentSize(size))
	require.NoError(t, err)
	doc, err := cache.Get(context.Background(), f.url())
	require.NoError(t, err)
	require.Equal(t, "Petstore", doc.Info.Title)
}

// TestGet_CorruptEntryIsAbsent tests that an unreadable stored blob is refetched instead of surfaced
func TestGet_CorruptEntryIsAbsent(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Set(specdoc.Key(f.url()), []byte("{not json")))

	doc, err := f.cache.Get(context.Background(), f.url())
	require.NoError(t, err)
	require.Equal(t, "Petstore", doc.Info.Title)
	require.Equal(t, int32(1), f.hits.Load())
}

func TestInvalidate(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.cache.Get(context.Background(), f.url())
	require.NoError(t, err)

	require.NoError(t, f.cache.Invalidate(f.url()))
	_, err = f.cache.Get(context.Background(), f.url())
	require.NoError(t, err)
	require.Equal(t, int32(2), f.hits.Load())
}

func TestOperations_SortedAndFiltered(t *testing.T) {
	doc, err := specdoc.Parse([]byte(petstoreYAML))
	require.NoError(t, err)

	ops := doc.Operations()
	require.Len(t, ops, 3)
	require.Equal(t, []string{"GET /pets", "POST /pets", "DELETE /pets/{id}"}, []string{
		ops[0].Method + " " + ops[0].Path,
		ops[1].Method + " " + ops[1].Path,
		ops[2].Method + " " + ops[2].Path,
	})
	require.Equal(t, "listPets", ops[0].OperationID)
	require.Equal(t, []string{"pets"}, ops[0].Tags)
	require.True(t, ops[2].Deprecated)
}

func TestParse_JSONAndRejects(t *testing.T) {
	doc, err := specdoc.Parse([]byte(`{"swagger":"2.0","info":{"title":"Old"},"paths":{"/a":{"get":{}}}}`))
	require.NoError(t, err)
	require.Equal(t, "2.0", doc.Version())
	require.Len(t, doc.Operations(), 1)

	_, err = specdoc.Parse([]byte(`title: nope`))
	require.Error(t, err)
	_, err = specdoc.Parse([]byte(`: [`))
	require.Error(t, err)
}
