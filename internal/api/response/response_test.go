package response_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramline/tramline/internal/api/middleware"
	"github.com/tramline/tramline/internal/api/models"
	"github.com/tramline/tramline/internal/api/response"
)

// requestWithContext returns a request that has passed through the RequestID middleware.
func requestWithContext(t *testing.T, method, path string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)

	var processed *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processed = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, processed)

	return processed, httptest.NewRecorder()
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	var problem models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	return problem
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/stops")

	response.JSON(rec, req, http.StatusOK, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, len(rec.Header().Get("X-Request-Id")), 10)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"hello"}`, rec.Body.String())
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/stops", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-Id"))
}

func TestJSON_NilData(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/stops")

	response.JSON(rec, req, http.StatusOK, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestJSON_UnencodableValue(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/plan")

	response.JSON(rec, req, http.StatusOK, map[string]any{"legs": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "response could not be encoded", problem.Detail)
	assert.Equal(t, "/v1/plan", problem.Instance)
}

func TestJSON_UnencodableValueIsNotCached(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/stops")

	response.Cacheable(rec, 5*time.Minute)
	response.JSON(rec, req, http.StatusOK, map[string]any{"lat": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCacheable(t *testing.T) {
	rec := httptest.NewRecorder()
	response.Cacheable(rec, 5*time.Minute)
	assert.Equal(t, "private, max-age=300", rec.Header().Get("Cache-Control"))
}

func TestProblemResponses(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter, r *http.Request)
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{
			name: "bad request",
			write: func(w http.ResponseWriter, r *http.Request) {
				response.BadRequest(w, r, "validation failed", []models.FieldError{{Field: "from.lat", Message: "out of range"}})
			},
			wantStatus: http.StatusBadRequest,
			wantType:   models.ProblemTypeValidation,
		},
		{
			name:       "not found",
			write:      func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "stop not found") },
			wantStatus: http.StatusNotFound,
			wantType:   models.ProblemTypeNotFound,
		},
		{
			name:       "no route",
			write:      func(w http.ResponseWriter, r *http.Request) { response.NoRoute(w, r, "no route found", "NO_ROUTE") },
			wantStatus: http.StatusNotFound,
			wantType:   models.ProblemTypeNoRoute,
			wantCode:   "NO_ROUTE",
		},
		{
			name:       "conflict",
			write:      func(w http.ResponseWriter, r *http.Request) { response.Conflict(w, r, "reload in progress") },
			wantStatus: http.StatusConflict,
			wantType:   models.ProblemTypeConflict,
		},
		{
			name:       "internal",
			write:      func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "something went wrong") },
			wantStatus: http.StatusInternalServerError,
			wantType:   models.ProblemTypeInternal,
		},
		{
			name: "unavailable",
			write: func(w http.ResponseWriter, r *http.Request) {
				response.ServiceUnavailable(w, r, "graph engine is unavailable", "GRAPH_UNAVAILABLE", 0)
			},
			wantStatus: http.StatusServiceUnavailable,
			wantType:   models.ProblemTypeUnavailable,
			wantCode:   "GRAPH_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodGet, "/v1/plan")

			tt.write(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			problem := decodeProblem(t, rec)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, tt.wantCode, problem.Code)
			assert.Equal(t, "/v1/plan", problem.Instance)
			assert.NotEmpty(t, problem.TraceID)
			assert.Equal(t, problem.TraceID, rec.Header().Get("X-Request-Id"))
		})
	}
}

func TestServiceUnavailable_RetryAfter(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/plan")

	response.ServiceUnavailable(rec, req, "catalog not loaded", "", 30*time.Second)

	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Empty(t, decodeProblem(t, rec).Code)
}

func TestRequestIDPropagation(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/stops", http.NoBody)
	req.Header.Set("X-Request-Id", "client-request-123")

	var processed *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processed = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "client-request-123", middleware.GetRequestID(processed.Context()))

	rec := httptest.NewRecorder()
	response.JSON(rec, processed, http.StatusOK, map[string]string{"status": "ok"})
	assert.Equal(t, "client-request-123", rec.Header().Get("X-Request-Id"))
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	assert.Empty(t, middleware.GetRequestID(context.Background()))
}
