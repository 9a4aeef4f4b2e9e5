package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramline/tramline/internal/api"
	"github.com/tramline/tramline/internal/api/middleware"
	"github.com/tramline/tramline/internal/api/models"
	"github.com/tramline/tramline/internal/auth"
	"github.com/tramline/tramline/internal/graph"
	"github.com/tramline/tramline/internal/itinerary"
	"github.com/tramline/tramline/internal/planner"
	"github.com/tramline/tramline/internal/stops"
	"github.com/tramline/tramline/internal/upstream"
	"github.com/tramline/tramline/internal/worker"
	"github.com/tramline/tramline/pkg/polyline"
)

var (
	hbf      = itinerary.Stop{ID: "A", Name: "Hauptbahnhof", Lat: 48.140228, Lon: 11.558335}
	karl     = itinerary.Stop{ID: "B", Name: "Karlsplatz", Lat: 48.139387, Lon: 11.565775}
	marien   = itinerary.Stop{ID: "C", Name: "Marienplatz", Lat: 48.137079, Lon: 11.575924}
	sendling = itinerary.Stop{ID: "D", Name: "Sendlinger Tor", Lat: 48.134120, Lon: 11.567300}
	isolated = itinerary.Stop{ID: "E", Name: "Isolated", Lat: 48.2, Lon: 11.6}

	catalogStops = []itinerary.Stop{hbf, karl, marien, sendling, isolated}
)

var network = []graph.Edge{
	{From: "A", To: "B", Kind: itinerary.KindTransit, Route: "U3", Weight: 120},
	{From: "B", To: "C", Kind: itinerary.KindTransit, Route: "U3", Weight: 120},
	{From: "A", To: "D", Kind: itinerary.KindTransit, Route: "58", Weight: 200, Mode: itinerary.ModeBus},
	{From: "D", To: "C", Kind: itinerary.KindTransit, Route: "58", Weight: 100, Mode: itinerary.ModeBus},
	{From: "B", To: "D", Kind: itinerary.KindWalk, Route: "Walk", Weight: 50},
}

// testTokenService creates a token service for operator tokens.
func testTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "tramline",
		Audience:   "tramline-admin",
	})
}

// operatorToken issues a token for an operator with the given scopes.
func operatorToken(t *testing.T, scopes ...string) string {
	t.Helper()
	token, _, err := testTokenService().Issue("ops@tramline.dev", scopes, time.Hour)
	require.NoError(t, err)
	return token
}

type testStack struct {
	router  http.Handler
	catalog *stops.Service
	graph   *graph.Service
}

func newTestStack(t *testing.T, loaded bool) *testStack {
	t.Helper()
	logger := zerolog.New(io.Discard)

	catalog := stops.NewService(stops.ServiceConfig{
		Repository: stops.NewInMemoryRepository(catalogStops),
		Logger:     logger,
	})
	if loaded {
		_, err := catalog.Load(context.Background())
		require.NoError(t, err)
	}

	engine, err := graph.NewMemoryEngine(catalogStops, network)
	require.NoError(t, err)
	graphService := graph.NewService(graph.ServiceConfig{Engine: engine, Logger: logger, K: 3})

	plannerService := planner.NewService(planner.ServiceConfig{
		Catalog:    catalog,
		Candidates: graphService,
		Itinerary:  itinerary.DefaultConfig(),
		K:          3,
		Logger:     logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2026-01-01T00:00:00Z",
		Logger:    logger,
		Planner:   plannerService,
		Catalog:   catalog,
		Graph:     graphService,
		Reloader: worker.NewReloader(worker.ReloaderConfig{
			Catalog: catalog,
			Cache:   graphService,
			Logger:  logger,
		}),
		WarmJob: worker.NewWarmJob(worker.WarmJobConfig{
			Config: worker.WarmConfig{Targets: []worker.WarmTarget{{Name: "hbf-marienplatz", FromStopID: "A", ToStopID: "C"}}},
			Source: graphService,
			Logger: logger,
		}),
		Tokens:   testTokenService(),
		Registry: upstream.NewRegistry(),
	})

	return &testStack{router: router, catalog: catalog, graph: graphService}
}

func (s *testStack) do(t *testing.T, method, target string, body []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRouter_HealthCheck(t *testing.T) {
	stack := newTestStack(t, true)

	w := stack.do(t, http.MethodGet, "/v1/ops/health", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	health := decode[models.Health](t, w)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	t.Run("catalog loaded", func(t *testing.T) {
		w := newTestStack(t, true).do(t, http.MethodGet, "/v1/ops/ready", nil, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, models.HealthStatusOK, decode[models.Health](t, w).Status)
	})

	t.Run("catalog not loaded", func(t *testing.T) {
		w := newTestStack(t, false).do(t, http.MethodGet, "/v1/ops/ready", nil, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		health := decode[models.Health](t, w)
		assert.Equal(t, models.HealthStatusFail, health.Status)
		assert.Equal(t, false, health.Details["catalog"])
	})
}

func TestRouter_SystemStatus(t *testing.T) {
	stack := newTestStack(t, true)

	w := stack.do(t, http.MethodGet, "/v1/ops/status", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = stack.do(t, http.MethodGet, "/v1/ops/status", nil, operatorToken(t, auth.ScopeStatus))
	require.Equal(t, http.StatusOK, w.Code)

	status := decode[models.SystemStatus](t, w)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 2)
	assert.Equal(t, "stop-catalog", status.Subsystems[0].Name)
	assert.Equal(t, "graph", status.Subsystems[1].Name)
	require.NotNil(t, status.Subsystems[1].Detail)
	assert.Equal(t, "memory", *status.Subsystems[1].Detail)
	assert.Empty(t, status.Upstreams)
	require.Len(t, status.Jobs, 2)
	assert.Equal(t, worker.JobCacheWarm, status.Jobs[0].Name)
	assert.Equal(t, worker.JobCatalogReload, status.Jobs[1].Name)
}

func TestRouter_PlanPost(t *testing.T) {
	stack := newTestStack(t, true)

	body := []byte(`{"from":{"stopId":"A"},"to":{"stopId":"C"}}`)
	w := stack.do(t, http.MethodPost, "/v1/plan", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "private, max-age=60", w.Header().Get("Cache-Control"))

	plan := decode[models.PlanResponse](t, w)
	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, "memory", plan.Engine)
	assert.Equal(t, "A", plan.From.Stop.ID)
	assert.Nil(t, plan.From.Coordinate)
	assert.InDelta(t, 240.0, plan.Summary.Score, 1e-9)
	assert.InDelta(t, 4.0, plan.Summary.RideMinutes, 1e-9)
	assert.Equal(t, 3, plan.Summary.CandidatesEvaluated)

	require.Len(t, plan.Legs, 1)
	leg := plan.Legs[0]
	assert.Equal(t, "U-Bahn", leg.Mode)
	assert.Equal(t, "U3", leg.Route)
	assert.Len(t, leg.Waypoints, 3)
	assert.Equal(t, "A", leg.From.StopID)
	assert.Equal(t, "C", leg.To.StopID)
	assert.Positive(t, leg.DistanceMeters)

	decoded, err := polyline.Decode(leg.Polyline)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	assert.InDelta(t, hbf.Lat, decoded[0].Lat, 1e-5)
	assert.InDelta(t, marien.Lon, decoded[2].Lon, 1e-5)
}

func TestRouter_PlanGet_Coordinates(t *testing.T) {
	stack := newTestStack(t, true)

	w := stack.do(t, http.MethodGet, "/v1/plan?from=48.140228,11.558335&to=C&k=2", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	plan := decode[models.PlanResponse](t, w)
	assert.Equal(t, "A", plan.From.Stop.ID)
	require.NotNil(t, plan.From.Coordinate)
	require.NotNil(t, plan.From.DistanceMeters)
	assert.InDelta(t, 0.0, *plan.From.DistanceMeters, 1e-6)
	assert.Equal(t, 2, plan.Summary.CandidatesEvaluated)
}

func TestRouter_PlanErrors(t *testing.T) {
	stack := newTestStack(t, true)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantType   string
		wantCode   string
		wantField  string
	}{
		{
			name:       "malformed json",
			method:     http.MethodPost,
			target:     "/v1/plan",
			body:       `{"from":`,
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
		},
		{
			name:       "missing endpoint",
			method:     http.MethodPost,
			target:     "/v1/plan",
			body:       `{"from":{},"to":{"stopId":"C"}}`,
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
			wantField:  "from.stopId",
		},
		{
			name:       "latitude without longitude",
			method:     http.MethodPost,
			target:     "/v1/plan",
			body:       `{"from":{"lat":48.1},"to":{"stopId":"C"}}`,
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
			wantField:  "from.lon",
		},
		{
			name:       "latitude out of range",
			method:     http.MethodPost,
			target:     "/v1/plan",
			body:       `{"from":{"lat":95,"lon":11.5},"to":{"stopId":"C"}}`,
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
			wantField:  "from.lat",
		},
		{
			name:       "k out of range",
			method:     http.MethodGet,
			target:     "/v1/plan?from=A&to=C&k=50",
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
			wantField:  "k",
		},
		{
			name:       "unknown stop",
			method:     http.MethodGet,
			target:     "/v1/plan?from=A&to=Z",
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
			wantCode:   planner.CodeUnknownStop,
			wantField:  "to",
		},
		{
			name:       "no route",
			method:     http.MethodGet,
			target:     "/v1/plan?from=A&to=E",
			wantStatus: http.StatusNotFound,
			wantType:   models.ProblemTypeNoRoute,
			wantCode:   planner.CodeNoRoute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			w := stack.do(t, tt.method, tt.target, body, "")

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

			problem := decode[models.Problem](t, w)
			assert.Equal(t, tt.wantType, problem.Type)
			if tt.wantCode != "" && tt.wantStatus != http.StatusBadRequest {
				assert.Equal(t, tt.wantCode, problem.Code)
			}
			if tt.wantField != "" {
				require.NotEmpty(t, problem.Errors)
				assert.Equal(t, tt.wantField, problem.Errors[0].Field)
				if tt.wantCode != "" {
					assert.Equal(t, tt.wantCode, problem.Errors[0].Code)
				}
			}
		})
	}
}

func TestRouter_PlanCatalogNotLoaded(t *testing.T) {
	stack := newTestStack(t, false)

	w := stack.do(t, http.MethodGet, "/v1/plan?from=A&to=C", nil, "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, planner.CodeCatalogUnloaded, decode[models.Problem](t, w).Code)
}

func TestRouter_PlanRequiresJSON(t *testing.T) {
	stack := newTestStack(t, true)

	req := httptest.NewRequest(http.MethodPost, "/v1/plan", bytes.NewReader([]byte("from=A")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	stack.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_ListStops(t *testing.T) {
	stack := newTestStack(t, true)

	w := stack.do(t, http.MethodGet, "/v1/stops?limit=2&offset=1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	list := decode[models.StopList](t, w)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "B", list.Items[0].ID)
	assert.Equal(t, "C", list.Items[1].ID)
	assert.Equal(t, 5, list.Meta.Total)
	require.NotNil(t, list.Meta.NextCursor)
	assert.Equal(t, "3", *list.Meta.NextCursor)

	w = stack.do(t, http.MethodGet, "/v1/stops?offset=4", nil, "")
	list = decode[models.StopList](t, w)
	require.Len(t, list.Items, 1)
	assert.Nil(t, list.Meta.NextCursor)

	w = stack.do(t, http.MethodGet, "/v1/stops?limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_GetStop(t *testing.T) {
	stack := newTestStack(t, true)

	w := stack.do(t, http.MethodGet, "/v1/stops/C", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	stop := decode[models.Stop](t, w)
	assert.Equal(t, "Marienplatz", stop.Name)

	w = stack.do(t, http.MethodGet, "/v1/stops/Z", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_NearestStop(t *testing.T) {
	stack := newTestStack(t, true)

	near := itinerary.Offset(karl.Coordinate(), 30, 0)
	w := stack.do(t, http.MethodGet, "/v1/stops:nearest?lat="+ftoa(near.Lat)+"&lon="+ftoa(near.Lon), nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stop := decode[models.NearbyStop](t, w)
	assert.Equal(t, "B", stop.ID)
	assert.InDelta(t, 30.0, stop.DistanceMeters, 1.0)

	w = stack.do(t, http.MethodGet, "/v1/stops:nearest?lat=48.1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_NearbyStops(t *testing.T) {
	stack := newTestStack(t, true)

	w := stack.do(t, http.MethodGet, "/v1/stops:nearby?lat=48.139387&lon=11.565775&radius=600&limit=5", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	list := decode[models.NearbyStopList](t, w)
	require.NotEmpty(t, list.Items)
	assert.Equal(t, "B", list.Items[0].ID)
	for i := 1; i < len(list.Items); i++ {
		assert.GreaterOrEqual(t, list.Items[i].DistanceMeters, list.Items[i-1].DistanceMeters)
		assert.LessOrEqual(t, list.Items[i].DistanceMeters, 600.0)
	}

	w = stack.do(t, http.MethodGet, "/v1/stops:nearby?lat=48.1&lon=11.5&radius=9000", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	problem := decode[models.Problem](t, w)
	require.NotEmpty(t, problem.Errors)
	assert.Equal(t, "radius", problem.Errors[0].Field)
}

func TestRouter_StopsCatalogNotLoaded(t *testing.T) {
	stack := newTestStack(t, false)

	w := stack.do(t, http.MethodGet, "/v1/stops/A", nil, "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_AdminCatalogReload(t *testing.T) {
	stack := newTestStack(t, false)

	w := stack.do(t, http.MethodPost, "/v1/admin/catalog:reload", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = stack.do(t, http.MethodPost, "/v1/admin/catalog:reload", nil, operatorToken(t, auth.ScopeCacheAdmin))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = stack.do(t, http.MethodPost, "/v1/admin/catalog:reload", nil, operatorToken(t, auth.ScopeCatalogReload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode[models.CatalogReloadResponse](t, w)
	assert.True(t, res.Catalog.Loaded)
	assert.Equal(t, "memory", res.Catalog.Source)
	assert.Equal(t, 5, res.Catalog.Stops)
	assert.NotNil(t, res.Catalog.LoadedAt)
	assert.True(t, res.CachePurged)

	assert.True(t, stack.catalog.Stats().Loaded)
}

func TestRouter_AdminCache(t *testing.T) {
	stack := newTestStack(t, true)
	token := operatorToken(t, auth.ScopeCacheAdmin)

	_, err := stack.graph.Candidates(context.Background(), "A", "C", 3)
	require.NoError(t, err)

	w := stack.do(t, http.MethodGet, "/v1/admin/cache", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Positive(t, decode[models.CacheStatus](t, w).Entries)

	w = stack.do(t, http.MethodPost, "/v1/admin/cache:purge", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[models.CacheStatus](t, w).Entries)
}

func TestRouter_AdminWithoutTokens(t *testing.T) {
	logger := zerolog.New(io.Discard)
	catalog := stops.NewService(stops.ServiceConfig{Repository: stops.NewInMemoryRepository(catalogStops), Logger: logger})
	engine, err := graph.NewMemoryEngine(catalogStops, network)
	require.NoError(t, err)
	graphService := graph.NewService(graph.ServiceConfig{Engine: engine, Logger: logger})

	router := api.NewRouter(api.RouterConfig{
		Logger:   logger,
		Catalog:  catalog,
		Graph:    graphService,
		Reloader: worker.NewReloader(worker.ReloaderConfig{Catalog: catalog, Logger: logger}),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/cache", http.NoBody)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_RequestID_Generated(t *testing.T) {
	w := newTestStack(t, true).do(t, http.MethodGet, "/v1/ops/health", nil, "")

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	stack := newTestStack(t, true)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()
	stack.router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_PlanBodyTooLarge(t *testing.T) {
	body := append([]byte(`{"from":{"stopId":"`), bytes.Repeat([]byte("A"), middleware.DefaultMaxBodyBytes)...)
	body = append(body, []byte(`"},"to":{"stopId":"C"}}`)...)

	w := newTestStack(t, true).do(t, http.MethodPost, "/v1/plan", body, "")

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_NotFound(t *testing.T) {
	w := newTestStack(t, true).do(t, http.MethodGet, "/v1/nonexistent", nil, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func ftoa(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
