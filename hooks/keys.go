package hooks

import (
	"github.com/jrsteele09/go-api-dashboard/projects"
	"github.com/jrsteele09/go-api-dashboard/query"
	"github.com/jrsteele09/go-api-dashboard/testruns"
)

// Key layout. Collections and single items of a family share a root so a
// prefix invalidates both.
//
//	{"projects", "list", params}
//	{"projects", "detail", id}
//	{"endpoints", id, "list"} / {"endpoints", id, "detail", endpointID}
//	{"test-runs", id, "list"} / {"test-runs", id, "detail", runID}
//	{"performance", id, range}
//	{"user", "me"} / {"user", "unread-count"}
//	{"aimodels"}
//	{"specdoc", url}

func ProjectListRootKey() query.Key {
	return query.Key{"projects", "list"}
}

func ProjectListKey(params projects.ListParams) query.Key {
	return query.Key{"projects", "list", params}
}

func ProjectKey(id string) query.Key {
	return query.Key{"projects", "detail", id}
}

func EndpointsRootKey(projectID string) query.Key {
	return query.Key{"endpoints", projectID}
}

func EndpointsKey(projectID string) query.Key {
	return query.Key{"endpoints", projectID, "list"}
}

func EndpointKey(projectID, endpointID string) query.Key {
	return query.Key{"endpoints", projectID, "detail", endpointID}
}

func TestRunsKey(projectID string) query.Key {
	return query.Key{"test-runs", projectID, "list"}
}

func TestRunKey(projectID, runID string) query.Key {
	return query.Key{"test-runs", projectID, "detail", runID}
}

func PerformanceRootKey(projectID string) query.Key {
	return query.Key{"performance", projectID}
}

func PerformanceKey(projectID string, r testruns.Range) query.Key {
	return query.Key{"performance", projectID, r}
}

func CurrentUserKey() query.Key {
	return query.Key{"user", "me"}
}

func UnreadCountKey() query.Key {
	return query.Key{"user", "unread-count"}
}

func AIModelsKey() query.Key {
	return query.Key{"aimodels"}
}

func SpecDocumentKey(url string) query.Key {
	return query.Key{"specdoc", url}
}

// projectSubtree is everything derived from one project's definition.
func projectSubtree(projectID string) []query.Key {
	return []query.Key{ProjectKey(projectID), EndpointsRootKey(projectID)}
}
