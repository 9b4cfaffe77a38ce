package projects_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-api-dashboard/internal/errors"
	"github.com/jrsteele09/go-api-dashboard/internal/utils"
	"github.com/jrsteele09/go-api-dashboard/projects"
	"github.com/jrsteele09/go-api-dashboard/transport"
)

type testFixture struct {
	hits   atomic.Int32
	server *httptest.Server
	client *projects.Client
}

func setupTestFixture(t *testing.T, handler http.HandlerFunc) *testFixture {
	t.Helper()
	f := &testFixture{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(f.server.Close)

	tc, err := transport.New(f.server.URL)
	require.NoError(t, err)
	f.client, err = projects.NewClient(tc)
	require.NoError(t, err)
	return f
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

const projectJSON = `{"project_uuid":"p1","name":"Demo","description":"","type":"url","account_type":"individual","openapi_url":"https://api.example.com/openapi.json","status":"active","endpoints_count":4,"tests_count":2,"created_at":"2026-01-02T10:00:00Z","updated_at":"2026-01-02T10:00:00Z"}`

// TestCreate_RejectsMissingSourceBeforeNetwork tests that defaults imply a URL project and a missing URL fails locally
func TestCreate_RejectsMissingSourceBeforeNetwork(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, projectJSON)
	})

	req := projects.CreateRequest{Name: "Demo", Description: ""}
	withDefaults := req.WithDefaults()
	require.Equal(t, projects.TypeURL, withDefaults.Type)
	require.Equal(t, projects.AccountIndividual, withDefaults.AccountType)

	_, err := f.client.Create(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Contains(t, apperrors.DisplayMessage(err), "OpenAPI URL is required")
	require.Zero(t, f.hits.Load())
}

// TestCreate_Validation tests the client-side rules that never reach the backend
func TestCreate_Validation(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, projectJSON)
	})

	testCases := []struct {
		name     string
		req      projects.CreateRequest
		contains string
	}{
		{name: "missing name", req: projects.CreateRequest{OpenAPIURL: "https://x.io/openapi.json"}, contains: "name is required"},
		{name: "both sources", req: projects.CreateRequest{Name: "Demo", OpenAPIURL: "https://x.io/openapi.json", File: &projects.File{Name: "spec.yaml", Content: strings.NewReader("openapi: 3.0.0")}}, contains: "not both"},
		{name: "bad type", req: projects.CreateRequest{Name: "Demo", Type: "zip", OpenAPIURL: "https://x.io/openapi.json"}, contains: "type must be one of"},
		{name: "bad url", req: projects.CreateRequest{Name: "Demo", OpenAPIURL: "not a url"}, contains: "openapi_url must be a valid URL"},
		{name: "file type without file", req: projects.CreateRequest{Name: "Demo", Type: projects.TypeFile}, contains: "OpenAPI file is required"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.client.Create(context.Background(), tc.req)
			require.ErrorIs(t, err, apperrors.ErrValidation)
			require.Contains(t, apperrors.DisplayMessage(err), tc.contains)
		})
	}
	require.Zero(t, f.hits.Load())
}

// TestCreate_URLSendsJSONWithDefaults tests the structured payload shape
func TestCreate_URLSendsJSONWithDefaults(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/b/projects/", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Demo", body["name"])
		require.Equal(t, "url", body["type"])
		require.Equal(t, "individual", body["account_type"])
		require.Equal(t, "https://api.example.com/openapi.json", body["openapi_url"])
		writeJSON(w, http.StatusCreated, projectJSON)
	})

	p, err := f.client.Create(context.Background(), projects.CreateRequest{Name: "Demo", OpenAPIURL: "https://api.example.com/openapi.json"})
	require.NoError(t, err)
	require.Equal(t, "p1", p.ID)
	require.Equal(t, 4, p.EndpointsCount)
}

// TestCreate_FileSendsMultipart tests the file payload shape
func TestCreate_FileSendsMultipart(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Demo", r.FormValue("name"))
		require.Equal(t, "url", r.FormValue("type"))
		require.Equal(t, "individual", r.FormValue("account_type"))

		file, header, err := r.FormFile(projects.FileField)
		require.NoError(t, err)
		defer file.Close()
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "petstore.yaml", header.Filename)
		require.Equal(t, "openapi: 3.0.0", string(content))
		writeJSON(w, http.StatusCreated, projectJSON)
	})

	_, err := f.client.Create(context.Background(), projects.CreateRequest{
		Name: "Demo",
		File: &projects.File{Name: "petstore.yaml", Content: strings.NewReader("openapi: 3.0.0")},
	})
	require.NoError(t, err)
	require.Equal(t, int32(1), f.hits.Load())
}

// TestGetAll_SendsListParams tests pagination parameters and the page envelope
func TestGetAll_SendsListParams(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "pet", r.URL.Query().Get("search"))
		require.Empty(t, r.URL.Query().Get("page_size"))
		writeJSON(w, http.StatusOK, `{"count":11,"next":null,"previous":"/b/projects/?page=1","results":[`+projectJSON+`]}`)
	})

	page, err := f.client.GetAll(context.Background(), projects.ListParams{Page: 2, Search: "pet"})
	require.NoError(t, err)
	require.Equal(t, 11, page.Count)
	require.Len(t, page.Results, 1)
	require.False(t, page.HasNext())
}

// TestUpdate_PatchesOnlySetFields tests partial updates
func TestUpdate_PatchesOnlySetFields(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/b/projects/p1/", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]any{"name": "Renamed"}, body)
		writeJSON(w, http.StatusOK, projectJSON)
	})

	_, err := f.client.Update(context.Background(), "p1", projects.UpdateRequest{Name: utils.Ptr("Renamed")})
	require.NoError(t, err)

	_, err = f.client.Update(context.Background(), "p1", projects.UpdateRequest{Name: utils.Ptr("")})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Equal(t, int32(1), f.hits.Load())
}

// TestUpdate_MultipartKeepsClearedFields tests that explicitly emptied fields survive the file payload shape
func TestUpdate_MultipartKeepsClearedFields(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, []string{""}, r.MultipartForm.Value["description"])
		require.NotContains(t, r.MultipartForm.Value, "name")
		_, _, err := r.FormFile(projects.FileField)
		require.NoError(t, err)
		writeJSON(w, http.StatusOK, projectJSON)
	})

	_, err := f.client.Update(context.Background(), "p1", projects.UpdateRequest{
		Description: utils.Ptr(""),
		File:        &projects.File{Name: "spec.yaml", Content: strings.NewReader("openapi: 3.0.0")},
	})
	require.NoError(t, err)
	require.Equal(t, int32(1), f.hits.Load())
}

// TestImportSpec tests both spec source shapes and the exactly-one rule
func TestImportSpec(t *testing.T) {
	var contentTypes []string
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/b/projects/p1/import-spec/", r.URL.Path)
		contentTypes = append(contentTypes, strings.SplitN(r.Header.Get("Content-Type"), ";", 2)[0])
		writeJSON(w, http.StatusOK, projectJSON)
	})

	_, err := f.client.ImportSpec(context.Background(), "p1", projects.SpecSource{URL: "https://x.io/openapi.json"})
	require.NoError(t, err)
	_, err = f.client.ImportSpec(context.Background(), "p1", projects.SpecSource{File: &projects.File{Name: "a.json", Content: strings.NewReader("{}")}})
	require.NoError(t, err)
	require.Equal(t, []string{"application/json", "multipart/form-data"}, contentTypes)

	_, err = f.client.ImportSpec(context.Background(), "p1", projects.SpecSource{})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

// TestEndpoints tests endpoint listing and lookup under a project
func TestEndpoints(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/b/projects/p1/endpoints":
			writeJSON(w, http.StatusOK, `[{"id":"e1","method":"GET","path":"/pets","parameters":[{"name":"limit","in":"query","required":false}],"responses":{"200":{"description":"ok"}}}]`)
		case "/b/projects/p1/endpoints/e1":
			writeJSON(w, http.StatusOK, `{"id":"e1","method":"GET","path":"/pets","parameters":[]}`)
		default:
			writeJSON(w, http.StatusNotFound, `{"detail":"Not found."}`)
		}
	})

	endpoints, err := f.client.GetEndpoints(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	require.Equal(t, "limit", endpoints[0].Parameters[0].Name)
	require.Equal(t, "ok", endpoints[0].Responses["200"].Description)

	e, err := f.client.GetEndpoint(context.Background(), "p1", "e1")
	require.NoError(t, err)
	require.Equal(t, "/pets", e.Path)

	_, err = f.client.GetEndpoint(context.Background(), "p1", "missing")
	require.Equal(t, "Not found.", apperrors.DisplayMessage(err))

	_, err = f.client.GetEndpoint(context.Background(), "", "e1")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

// TestRemove_PropagatesNormalizedError tests that failures surface the transport's error
func TestRemove_PropagatesNormalizedError(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/b/projects/p1/" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusInternalServerError, `{"detail":"database unavailable"}`)
	})

	require.NoError(t, f.client.Remove(context.Background(), "p1"))

	err := f.client.Remove(context.Background(), "p2")
	var tErr *transport.Error
	require.ErrorAs(t, err, &tErr)
	require.Equal(t, transport.KindServer, tErr.Kind)
	require.Equal(t, "database unavailable", tErr.DisplayMessage())
}

func TestNewClient_RequiresTransport(t *testing.T) {
	_, err := projects.NewClient(nil)
	require.Error(t, err)
}
