package testruns_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-api-dashboard/internal/errors"
	"github.com/jrsteele09/go-api-dashboard/testruns"
	"github.com/jrsteele09/go-api-dashboard/transport"
)

const runJSON = `{"id":"r1","total":4,"passed":3,"failed":1,"pass_rate":75,"duration_seconds":1.5,"results":[
 {"path":"/pets","method":"GET","status_code":200,"response_time_ms":120.5,"status":"passed","assertions":[{"name":"status is 200","passed":true}]},
 {"path":"/pets/{id}","method":"DELETE","status_code":500,"response_time_ms":80,"status":"failed","assertions":[],"error":"Internal Server Error"}]}`

func setupTestFixture(t *testing.T, handler http.HandlerFunc) (*testruns.Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	tc, err := transport.New(server.URL)
	require.NoError(t, err)
	client, err := testruns.NewClient(tc)
	require.NoError(t, err)
	return client, &hits
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

// TestRunTests_PostsConfig tests the run request and result decoding
func TestRunTests_PostsConfig(t *testing.T) {
	client, _ := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/b/projects/p1/test-runs/", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "gpt-4o", body["ai_model"])
		require.Equal(t, []any{"e1", "e2"}, body["endpoint_ids"])
		writeJSON(w, runJSON)
	})

	run, err := client.RunTests(context.Background(), "p1", testruns.RunConfig{EndpointIDs: []string{"e1", "e2"}, ModelID: "gpt-4o"})
	require.NoError(t, err)
	require.Equal(t, 4, run.Total)
	require.Len(t, run.Results, 2)
	require.Equal(t, testruns.StatusFailed, run.Results[1].Status)
	require.Equal(t, "Internal Server Error", run.Results[1].Error)
	require.True(t, run.Results[0].Assertions[0].Passed)
}

// TestRunTests_ValidatesLocally tests that bad configs and ids never reach the backend
func TestRunTests_ValidatesLocally(t *testing.T) {
	client, hits := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, runJSON)
	})

	_, err := client.RunTests(context.Background(), "", testruns.RunConfig{})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = client.RunTests(context.Background(), "p1", testruns.RunConfig{BaseURL: "nope"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = client.RunTests(context.Background(), "p1", testruns.RunConfig{TimeoutSeconds: 9000})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = client.GetByID(context.Background(), "p1", " ")
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Zero(t, hits.Load())
}

func TestGetAllAndGetByID(t *testing.T) {
	client, _ := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/b/projects/p1/test-runs/":
			writeJSON(w, `{"count":1,"next":null,"previous":null,"results":[`+runJSON+`]}`)
		case "/b/projects/p1/test-runs/r1":
			writeJSON(w, runJSON)
		default:
			http.NotFound(w, r)
		}
	})

	runs, err := client.GetAll(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run, err := client.GetByID(context.Background(), "p1", "r1")
	require.NoError(t, err)
	require.Equal(t, "r1", run.ID)
	require.Equal(t, 75.0, run.Rate())
}

// TestGetPerformance tests the range query parameter and its default
func TestGetPerformance(t *testing.T) {
	var ranges []string
	client, hits := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/b/projects/p1/performance/", r.URL.Path)
		ranges = append(ranges, r.URL.Query().Get("range"))
		writeJSON(w, `{"total_runs":12,"avg_response_time_ms":95.2,"success_rate":91.6,"points":[{"timestamp":"2026-01-02T00:00:00Z","runs":3,"pass_rate":100}]}`)
	})

	perf, err := client.GetPerformance(context.Background(), "p1", testruns.Range30d)
	require.NoError(t, err)
	require.Equal(t, testruns.Range30d, perf.Range)
	require.Equal(t, 12, perf.TotalRuns)
	require.Len(t, perf.Points, 1)

	_, err = client.GetPerformance(context.Background(), "p1", "")
	require.NoError(t, err)
	require.Equal(t, []string{"30d", "7d"}, ranges)

	_, err = client.GetPerformance(context.Background(), "p1", "1y")
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Equal(t, int32(2), hits.Load())
}

func TestRemove(t *testing.T) {
	client, _ := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/b/projects/p1/test-runs/r1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, client.Remove(context.Background(), "p1", "r1"))
}

func TestTestRun_Rate(t *testing.T) {
	require.Equal(t, 50.0, testruns.TestRun{Total: 4, Passed: 2}.Rate())
	require.Zero(t, testruns.TestRun{}.Rate())
}
