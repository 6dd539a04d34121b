package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/model"
)

func fastHTTPVRP(baseURL string) *HTTPVRP {
	h := NewHTTPVRP(nil, HTTPVRPOptions{BaseURL: baseURL})
	h.backoff = time.Millisecond
	return h
}

func TestHTTPVRPHealthCheck(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	assert.True(t, fastHTTPVRP(up.URL).HealthCheck(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.False(t, fastHTTPVRP(down.URL).HealthCheck(context.Background()))

	assert.False(t, fastHTTPVRP("http://127.0.0.1:1").HealthCheck(context.Background()))
}

func TestHTTPVRPSolveBuildsRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/solve", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var p model.RoutingProblem
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Len(t, p.Jobs, 3)

		fmt.Fprint(w, `{"routes":[{"vehicleId":"v1","jobOrder":[2,0]}],"unassigned":["job-1"]}`)
	}))
	defer srv.Close()

	p := testProblem(3, 1, testVehicle("v1", 10))
	res, err := fastHTTPVRP(srv.URL).Solve(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "httpvrp", res.SolverUsed)
	assert.Equal(t, []string{"job-1"}, res.UnassignedJobs)
	require.Len(t, res.Routes, 1)

	counts := jobIDsOnRoutes(res)
	assert.Equal(t, map[string]int{"job-2": 1, "job-0": 1}, counts)
	assert.InDelta(t, 2.0/3.0, res.QualityScore, 1e-9)
	assert.Greater(t, res.TotalDistanceM, 0.0)
}

func TestHTTPVRPSolveSendsAPIKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"routes":[],"unassigned":[]}`)
	}))
	defer srv.Close()

	h := NewHTTPVRP(nil, HTTPVRPOptions{BaseURL: srv.URL, APIKey: "sekret"})
	h.backoff = time.Millisecond
	_, err := h.Solve(context.Background(), testProblem(1, 1, testVehicle("v1", 10)))
	require.NoError(t, err)
	assert.Equal(t, "Bearer sekret", gotAuth)
}

func TestHTTPVRPRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"routes":[],"unassigned":[]}`)
	}))
	defer srv.Close()

	_, err := fastHTTPVRP(srv.URL).Solve(context.Background(), testProblem(1, 1, testVehicle("v1", 10)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestHTTPVRPServiceErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"code":"UNSUPPORTED_CONSTRAINT","message":"pickup-delivery pairs are not supported"}`)
	}))
	defer srv.Close()

	_, err := fastHTTPVRP(srv.URL).Solve(context.Background(), testProblem(1, 1, testVehicle("v1", 10)))
	require.Error(t, err)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "UNSUPPORTED_CONSTRAINT", se.Code)
	assert.Equal(t, int64(1), calls.Load(), "structured rejections must not be retried")
}

func TestHTTPVRPGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := fastHTTPVRP(srv.URL).Solve(context.Background(), testProblem(1, 1, testVehicle("v1", 10)))
	require.Error(t, err)
	assert.Equal(t, int64(3), calls.Load())
}

func TestHTTPVRPSolveTSP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tsp", r.URL.Path)
		var req struct {
			StartIndex    int  `json:"startIndex"`
			ReturnToStart bool `json:"returnToStart"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 1, req.StartIndex)
		fmt.Fprint(w, `{"order":[1,0,2]}`)
	}))
	defer srv.Close()

	locs := []model.Location{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}, {Lat: 3, Lng: 3}}
	order, err := fastHTTPVRP(srv.URL).SolveTSP(context.Background(), locs, 1, false)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, order)
}

func TestHTTPVRPSolveTSPShapeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"order":[0]}`)
	}))
	defer srv.Close()

	locs := []model.Location{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}
	_, err := fastHTTPVRP(srv.URL).SolveTSP(context.Background(), locs, 0, false)
	assert.Error(t, err)
}
