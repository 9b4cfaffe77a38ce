package hooks_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-api-dashboard/aimodels"
	"github.com/jrsteele09/go-api-dashboard/hooks"
	"github.com/jrsteele09/go-api-dashboard/internal/config"
	"github.com/jrsteele09/go-api-dashboard/internal/utils"
	"github.com/jrsteele09/go-api-dashboard/projects"
	"github.com/jrsteele09/go-api-dashboard/query"
	"github.com/jrsteele09/go-api-dashboard/testruns"
	"github.com/jrsteele09/go-api-dashboard/transport"
	"github.com/jrsteele09/go-api-dashboard/uistate"
	"github.com/jrsteele09/go-api-dashboard/users"
)

const (
	listPath      = "GET /b/projects/"
	detailPath    = "GET /b/projects/p1/"
	endpointsPath = "GET /b/projects/p1/endpoints"
	runsPath      = "GET /b/projects/p1/test-runs/"
	perfPath      = "GET /b/projects/p1/performance/"
	unreadPath    = "GET /b/user/notifications/unread-count/"
)

// fastPolling shortens the unread-count poll for tests.
type fastPolling struct {
	config.Cache
}

func (fastPolling) GetUnreadPollInterval() time.Duration {
	return 10 * time.Millisecond
}

// backend is a fake dashboard API that counts requests per method and path.
type backend struct {
	mu          sync.Mutex
	hits        map[string]int
	projectName string
	createGate  chan struct{}
}

func (b *backend) count(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path
	b.mu.Lock()
	b.hits[route]++
	name, gate := b.projectName, b.createGate
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	project := fmt.Sprintf(`{"project_uuid":"p1","name":%q,"type":"url","account_type":"individual","status":"active"}`, name)
	switch {
	case route == listPath:
		fmt.Fprintf(w, `{"count":1,"results":[%s]}`, project)
	case route == "POST /b/projects/":
		if gate != nil {
			<-gate
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, project)
	case route == detailPath:
		fmt.Fprint(w, project)
	case route == "PATCH /b/projects/p1/":
		b.mu.Lock()
		b.projectName = "Renamed"
		b.mu.Unlock()
		fmt.Fprint(w, strings.Replace(project, name, "Renamed", 1))
	case route == endpointsPath:
		fmt.Fprint(w, `[{"id":"e1","method":"GET","path":"/pets"}]`)
	case route == runsPath:
		fmt.Fprint(w, `{"count":0,"results":[]}`)
	case route == "POST /b/projects/p1/test-runs/":
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"r1","total":2,"passed":2,"failed":0}`)
	case route == perfPath:
		fmt.Fprintf(w, `{"range":%q,"total_runs":1}`, r.URL.Query().Get("range"))
	case route == unreadPath:
		fmt.Fprint(w, `{"unread_count":2}`)
	case route == "GET /b/aimodels/aimodels":
		fmt.Fprint(w, `[{"id":"m1","name":"Fast","is_default":true}]`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"Not found."}`)
	}
}

type testFixture struct {
	backend *backend
	cache   *query.Cache
	ui      *uistate.Store
	hooks   *hooks.Hooks
}

func setupTestFixture(t *testing.T, cfg config.CacheConfig) *testFixture {
	t.Helper()
	f := &testFixture{backend: &backend{hits: map[string]int{}, projectName: "Demo"}}
	server := httptest.NewServer(f.backend)
	t.Cleanup(server.Close)

	tc, err := transport.New(server.URL)
	require.NoError(t, err)
	projectsClient, err := projects.NewClient(tc)
	require.NoError(t, err)
	runsClient, err := testruns.NewClient(tc)
	require.NoError(t, err)
	usersClient, err := users.NewClient(tc)
	require.NoError(t, err)
	modelsClient, err := aimodels.NewClient(tc)
	require.NoError(t, err)

	f.cache = query.New()
	f.ui = uistate.New()
	f.hooks, err = hooks.New(hooks.Deps{
		Cache:    f.cache,
		Projects: projectsClient,
		TestRuns: runsClient,
		Users:    usersClient,
		AIModels: modelsClient,
		Config:   cfg,
		UI:       f.ui,
	})
	require.NoError(t, err)
	return f
}

func (f *testFixture) waitHits(t *testing.T, route string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.backend.count(route) >= n }, time.Second, 5*time.Millisecond, route)
}

// TestProject_DisabledWithoutID tests that a query with no identity never reaches the backend
func TestProject_DisabledWithoutID(t *testing.T) {
	f := setupTestFixture(t, nil)

	q := f.hooks.Project("")
	defer q.Close()

	p, err := q.Get(context.Background())
	require.NoError(t, err)
	require.Nil(t, p)
	require.False(t, q.Result().HasData)
	require.Zero(t, f.backend.count("GET /b/projects//"))
}

// TestUpdateProject_RefetchesListAndDetail tests that a committed update refreshes every mounted view of the project
func TestUpdateProject_RefetchesListAndDetail(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	list := f.hooks.Projects(projects.ListParams{})
	defer list.Close()
	detail := f.hooks.Project("p1")
	defer detail.Close()

	p, err := detail.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "Demo", p.Name)
	page, err := list.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, page.Count)

	updated, err := f.hooks.UpdateProject.Do(ctx, hooks.ProjectUpdate{ID: "p1", Request: projects.UpdateRequest{Name: utils.Ptr("Renamed")}})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)

	f.waitHits(t, detailPath, 2)
	f.waitHits(t, listPath, 2)

	p, err = detail.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "Renamed", p.Name)
	require.Equal(t, 2, f.backend.count(detailPath))
}

// TestRunTests_InvalidatesRunsAndPerformance tests the invalidation set of a test run
func TestRunTests_InvalidatesRunsAndPerformance(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	endpoints := f.hooks.Endpoints("p1")
	defer endpoints.Close()
	runs := f.hooks.TestRuns("p1")
	defer runs.Close()
	perf := f.hooks.Performance("p1", "")
	defer perf.Close()

	_, err := endpoints.Get(ctx)
	require.NoError(t, err)
	_, err = runs.Get(ctx)
	require.NoError(t, err)
	got, err := perf.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, testruns.Range7d, got.Range)

	run, err := f.hooks.RunTests.Do(ctx, hooks.TestRunRequest{ProjectID: "p1"})
	require.NoError(t, err)
	require.Equal(t, "r1", run.ID)

	f.waitHits(t, runsPath, 2)
	f.waitHits(t, perfPath, 2)
	require.Equal(t, 1, f.backend.count(endpointsPath))

	r, ok := f.cache.Peek(hooks.ProjectKey("p1"))
	require.False(t, ok, "unobserved detail is not created by invalidation: %+v", r)
}

// TestInvalidationSets tests which cached keys each mutation marks stale
func TestInvalidationSets(t *testing.T) {
	ctx := context.Background()
	seed := func(f *testFixture, keys ...query.Key) {
		for _, k := range keys {
			_, err := f.cache.Fetch(ctx, k, func(context.Context) (any, error) { return "seed", nil }, query.Options{StaleTime: time.Hour})
			require.NoError(t, err)
		}
	}
	stale := func(f *testFixture, k query.Key) bool {
		r, ok := f.cache.Peek(k)
		require.True(t, ok)
		return r.IsStale
	}

	all := []query.Key{
		hooks.ProjectListKey(projects.ListParams{Page: 2}),
		hooks.ProjectKey("p1"),
		hooks.EndpointsKey("p1"),
		hooks.EndpointKey("p1", "e1"),
		hooks.TestRunsKey("p1"),
		hooks.TestRunKey("p1", "r1"),
		hooks.PerformanceKey("p1", testruns.Range30d),
		hooks.ProjectKey("p2"),
		hooks.CurrentUserKey(),
	}

	testCases := []struct {
		name     string
		mutate   func(h *hooks.Hooks) error
		expected []bool // parallel to all
	}{
		{
			name: "update project",
			mutate: func(h *hooks.Hooks) error {
				_, err := h.UpdateProject.Do(ctx, hooks.ProjectUpdate{ID: "p1", Request: projects.UpdateRequest{Name: utils.Ptr("x")}})
				return err
			},
			expected: []bool{true, true, true, true, false, false, false, false, false},
		},
		{
			name: "run tests",
			mutate: func(h *hooks.Hooks) error {
				_, err := h.RunTests.Do(ctx, hooks.TestRunRequest{ProjectID: "p1"})
				return err
			},
			expected: []bool{true, true, false, false, true, false, true, false, false},
		},
		{
			name: "create project",
			mutate: func(h *hooks.Hooks) error {
				_, err := h.CreateProject.Do(ctx, projects.CreateRequest{Name: "New", OpenAPIURL: "https://x.io/openapi.json"})
				return err
			},
			expected: []bool{true, false, false, false, false, false, false, false, false},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupTestFixture(t, nil)
			seed(f, all...)
			require.NoError(t, tc.mutate(f.hooks))
			for i, k := range all {
				require.Equal(t, tc.expected[i], stale(f, k), k.String())
			}
		})
	}
}

// TestMutation_FailureShowsBannerAndKeepsCache tests the failure path of a mutation
func TestMutation_FailureShowsBannerAndKeepsCache(t *testing.T) {
	f := setupTestFixture(t, nil)
	ctx := context.Background()

	list := f.hooks.Projects(projects.ListParams{})
	defer list.Close()
	_, err := list.Get(ctx)
	require.NoError(t, err)

	_, err = f.hooks.DeleteProject.Do(ctx, "missing")
	require.Error(t, err)

	n, ok := f.ui.Notification()
	require.True(t, ok)
	require.Equal(t, "Not found.", n.Message)
	require.Equal(t, uistate.KindError, n.Kind)
	require.False(t, list.Result().IsStale)
	require.Equal(t, 1, f.backend.count(listPath))
}

func TestMutation_IsLoading(t *testing.T) {
	f := setupTestFixture(t, nil)
	gate := make(chan struct{})
	f.backend.mu.Lock()
	f.backend.createGate = gate
	f.backend.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.hooks.CreateProject.Do(context.Background(), projects.CreateRequest{Name: "Demo", OpenAPIURL: "https://x.io/openapi.json"})
		done <- err
	}()

	require.Eventually(t, f.hooks.CreateProject.IsLoading, time.Second, 5*time.Millisecond)
	close(gate)
	require.NoError(t, <-done)
	require.False(t, f.hooks.CreateProject.IsLoading())
}

// TestUnreadCount_Polls tests that the unread counter refetches on its interval while mounted
func TestUnreadCount_Polls(t *testing.T) {
	f := setupTestFixture(t, fastPolling{})

	q := f.hooks.UnreadCount()
	f.waitHits(t, unreadPath, 3)
	require.Equal(t, 2, q.Result().Data)

	q.Close()
	time.Sleep(20 * time.Millisecond)
	after := f.backend.count(unreadPath)
	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, f.backend.count(unreadPath), after+1)
}

func TestQuery_TypedUpdates(t *testing.T) {
	f := setupTestFixture(t, nil)

	q := f.hooks.AIModels()
	defer q.Close()

	for r := range q.Updates() {
		if r.HasData {
			require.Equal(t, "m1", r.Data[0].ID)
			break
		}
	}
}

func TestNew_RequiresClients(t *testing.T) {
	_, err := hooks.New(hooks.Deps{})
	require.Error(t, err)
	_, err = hooks.New(hooks.Deps{Cache: query.New()})
	require.Error(t, err)
}
