// Package hooks composes the resource clients with the query cache: one typed
// query or mutation per view need, each with its cache key, staleness and the
// keys it invalidates.
package hooks

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-api-dashboard/aimodels"
	"github.com/jrsteele09/go-api-dashboard/internal/config"
	"github.com/jrsteele09/go-api-dashboard/projects"
	"github.com/jrsteele09/go-api-dashboard/query"
	"github.com/jrsteele09/go-api-dashboard/specdoc"
	"github.com/jrsteele09/go-api-dashboard/testruns"
	"github.com/jrsteele09/go-api-dashboard/transport"
	"github.com/jrsteele09/go-api-dashboard/uistate"
	"github.com/jrsteele09/go-api-dashboard/users"
)

// Deps are the collaborators of Hooks. SpecDocs and UI are optional.
type Deps struct {
	Cache    *query.Cache
	Projects *projects.Client
	TestRuns *testruns.Client
	Users    *users.Client
	AIModels *aimodels.Client
	SpecDocs *specdoc.Cache
	Config   config.CacheConfig
	UI       *uistate.Store
}

type ProjectUpdate struct {
	ID      string
	Request projects.UpdateRequest
}

type SpecImport struct {
	ProjectID string
	Source    projects.SpecSource
}

type TestRunRequest struct {
	ProjectID string
	Config    testruns.RunConfig
}

type TestRunRef struct {
	ProjectID string
	RunID     string
}

type Hooks struct {
	cache    *query.Cache
	projects *projects.Client
	testRuns *testruns.Client
	users    *users.Client
	aiModels *aimodels.Client
	specDocs *specdoc.Cache
	cfg      config.CacheConfig
	ui       *uistate.Store

	CreateProject *Mutation[projects.CreateRequest, *projects.Project]
	UpdateProject *Mutation[ProjectUpdate, *projects.Project]
	ImportSpec    *Mutation[SpecImport, *projects.Project]
	DeleteProject *Mutation[string, struct{}]
	RunTests      *Mutation[TestRunRequest, *testruns.TestRun]
	DeleteTestRun *Mutation[TestRunRef, struct{}]
	UpdateUser    *Mutation[users.UpdateRequest, *users.User]
}

func New(deps Deps) (*Hooks, error) {
	switch {
	case deps.Cache == nil:
		return nil, errors.New("[hooks.New] cache is required")
	case deps.Projects == nil:
		return nil, errors.New("[hooks.New] projects client is required")
	case deps.TestRuns == nil:
		return nil, errors.New("[hooks.New] test runs client is required")
	case deps.Users == nil:
		return nil, errors.New("[hooks.New] users client is required")
	case deps.AIModels == nil:
		return nil, errors.New("[hooks.New] AI models client is required")
	}
	if deps.Config == nil {
		deps.Config = config.Cache{}
	}

	h := &Hooks{
		cache:    deps.Cache,
		projects: deps.Projects,
		testRuns: deps.TestRuns,
		users:    deps.Users,
		aiModels: deps.AIModels,
		specDocs: deps.SpecDocs,
		cfg:      deps.Config,
		ui:       deps.UI,
	}

	h.CreateProject = newMutation(h, h.projects.Create, func(projects.CreateRequest) []query.Key {
		return []query.Key{ProjectListRootKey()}
	})
	h.UpdateProject = newMutation(h, func(ctx context.Context, in ProjectUpdate) (*projects.Project, error) {
		return h.projects.Update(ctx, in.ID, in.Request)
	}, func(in ProjectUpdate) []query.Key {
		return append(projectSubtree(in.ID), ProjectListRootKey())
	})
	h.ImportSpec = newMutation(h, func(ctx context.Context, in SpecImport) (*projects.Project, error) {
		return h.projects.ImportSpec(ctx, in.ProjectID, in.Source)
	}, func(in SpecImport) []query.Key {
		return append(projectSubtree(in.ProjectID), ProjectListRootKey())
	})
	h.DeleteProject = newMutation(h, func(ctx context.Context, id string) (struct{}, error) {
		return struct{}{}, h.projects.Remove(ctx, id)
	}, func(id string) []query.Key {
		return append(projectSubtree(id), ProjectListRootKey())
	})
	h.RunTests = newMutation(h, func(ctx context.Context, in TestRunRequest) (*testruns.TestRun, error) {
		return h.testRuns.RunTests(ctx, in.ProjectID, in.Config)
	}, func(in TestRunRequest) []query.Key {
		return []query.Key{TestRunsKey(in.ProjectID), PerformanceRootKey(in.ProjectID), ProjectKey(in.ProjectID), ProjectListRootKey()}
	})
	h.DeleteTestRun = newMutation(h, func(ctx context.Context, in TestRunRef) (struct{}, error) {
		return struct{}{}, h.testRuns.Remove(ctx, in.ProjectID, in.RunID)
	}, func(in TestRunRef) []query.Key {
		return []query.Key{TestRunsKey(in.ProjectID), TestRunKey(in.ProjectID, in.RunID), PerformanceRootKey(in.ProjectID)}
	})
	h.UpdateUser = newMutation(h, h.users.Update, func(users.UpdateRequest) []query.Key {
		return []query.Key{CurrentUserKey()}
	})
	return h, nil
}

// Reset marks every entry stale. Used when the signed-in principal changes.
func (h *Hooks) Reset() {
	h.cache.Invalidate(query.Key{})
}

func (h *Hooks) Projects(params projects.ListParams) *Query[*transport.Page[projects.Project]] {
	return newQuery(h.cache, ProjectListKey(params), func(ctx context.Context) (*transport.Page[projects.Project], error) {
		return h.projects.GetAll(ctx, params)
	}, query.Options{StaleTime: h.cfg.GetListStaleTime()})
}

// Project is disabled until id is known.
func (h *Hooks) Project(id string) *Query[*projects.Project] {
	return newQuery(h.cache, ProjectKey(id), func(ctx context.Context) (*projects.Project, error) {
		return h.projects.GetByID(ctx, id)
	}, query.Options{StaleTime: h.cfg.GetDetailStaleTime(), Disabled: blank(id)})
}

func (h *Hooks) Endpoints(projectID string) *Query[[]projects.Endpoint] {
	return newQuery(h.cache, EndpointsKey(projectID), func(ctx context.Context) ([]projects.Endpoint, error) {
		return h.projects.GetEndpoints(ctx, projectID)
	}, query.Options{StaleTime: h.cfg.GetDetailStaleTime(), Disabled: blank(projectID)})
}

func (h *Hooks) Endpoint(projectID, endpointID string) *Query[*projects.Endpoint] {
	return newQuery(h.cache, EndpointKey(projectID, endpointID), func(ctx context.Context) (*projects.Endpoint, error) {
		return h.projects.GetEndpoint(ctx, projectID, endpointID)
	}, query.Options{StaleTime: h.cfg.GetDetailStaleTime(), Disabled: blank(projectID) || blank(endpointID)})
}

func (h *Hooks) TestRuns(projectID string) *Query[[]testruns.TestRun] {
	return newQuery(h.cache, TestRunsKey(projectID), func(ctx context.Context) ([]testruns.TestRun, error) {
		return h.testRuns.GetAll(ctx, projectID)
	}, query.Options{StaleTime: h.cfg.GetListStaleTime(), Disabled: blank(projectID)})
}

func (h *Hooks) TestRun(projectID, runID string) *Query[*testruns.TestRun] {
	return newQuery(h.cache, TestRunKey(projectID, runID), func(ctx context.Context) (*testruns.TestRun, error) {
		return h.testRuns.GetByID(ctx, projectID, runID)
	}, query.Options{StaleTime: h.cfg.GetTestRunStaleTime(), Disabled: blank(projectID) || blank(runID)})
}

// Performance defaults to the last 7 days.
func (h *Hooks) Performance(projectID string, r testruns.Range) *Query[*testruns.Performance] {
	if r == "" {
		r = testruns.Range7d
	}
	return newQuery(h.cache, PerformanceKey(projectID, r), func(ctx context.Context) (*testruns.Performance, error) {
		return h.testRuns.GetPerformance(ctx, projectID, r)
	}, query.Options{StaleTime: h.cfg.GetPerformanceStaleTime(), Disabled: blank(projectID)})
}

func (h *Hooks) CurrentUser() *Query[*users.User] {
	return newQuery(h.cache, CurrentUserKey(), h.users.Me, query.Options{StaleTime: h.cfg.GetReferenceStaleTime()})
}

// UnreadCount polls while mounted.
func (h *Hooks) UnreadCount() *Query[int] {
	interval := h.cfg.GetUnreadPollInterval()
	return newQuery(h.cache, UnreadCountKey(), h.users.UnreadCount, query.Options{StaleTime: interval, RefetchInterval: interval})
}

func (h *Hooks) AIModels() *Query[[]aimodels.Model] {
	return newQuery(h.cache, AIModelsKey(), h.aiModels.GetAll, query.Options{StaleTime: h.cfg.GetReferenceStaleTime()})
}

// SpecDocument is disabled when no spec document cache is configured.
func (h *Hooks) SpecDocument(url string) *Query[*specdoc.Document] {
	return newQuery(h.cache, SpecDocumentKey(url), func(ctx context.Context) (*specdoc.Document, error) {
		return h.specDocs.Get(ctx, url)
	}, query.Options{StaleTime: h.cfg.GetSpecDocumentTTL(), Disabled: h.specDocs == nil || blank(url)})
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
