package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramline/tramline/internal/api/middleware"
	"github.com/tramline/tramline/internal/auth"
)

func fromAddr(method, path, addr string) *http.Request {
	req := httptest.NewRequest(method, path, http.NoBody)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitByIP(t *testing.T) {
	h := middleware.RateLimitByIP(middleware.RateLimit{Requests: 2, Window: time.Minute})(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, fromAddr(http.MethodPost, "/v1/plan", "10.0.0.1:4000"))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, fromAddr(http.MethodPost, "/v1/plan", "10.0.0.1:4001"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	p := problemOf(t, w)
	assert.Equal(t, "rate limit exceeded, retry later", p.Detail)
	assert.Equal(t, "/v1/plan", p.Instance)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, fromAddr(http.MethodPost, "/v1/plan", "10.0.0.2:4000"))
	assert.Equal(t, http.StatusOK, w.Code, "other clients keep their own budget")
}

func TestRateLimitByOperator(t *testing.T) {
	tokens := newTokenService()
	limit := middleware.RateLimit{Requests: 1, Window: 30 * time.Second}
	h := middleware.RequireScope(tokens, auth.ScopeCacheAdmin)(
		middleware.RateLimitByOperator(limit)(okHandler()),
	)

	send := func(subject, addr string) *httptest.ResponseRecorder {
		token, _, err := tokens.Issue(subject, []string{auth.ScopeCacheAdmin}, time.Hour)
		require.NoError(t, err)
		req := fromAddr(http.MethodPost, "/v1/admin/cache:purge", addr)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("alice", "10.0.0.1:1").Code)

	// Same operator from another address shares the budget.
	w := send("alice", "10.0.0.9:1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	// Another operator behind the same address does not.
	assert.Equal(t, http.StatusOK, send("bob", "10.0.0.1:1").Code)
}

func TestRateLimitByOperator_FallsBackToAddress(t *testing.T) {
	h := middleware.RateLimitByOperator(middleware.RateLimit{Requests: 1, Window: time.Minute})(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, fromAddr(http.MethodGet, "/v1/ops/status", "10.1.1.1:1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, fromAddr(http.MethodGet, "/v1/ops/status", "10.1.1.1:2"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimits_WithDefaults(t *testing.T) {
	defaults := middleware.DefaultRateLimits()
	assert.Equal(t, middleware.RateLimit{Requests: 30, Window: time.Minute}, defaults.Plan)
	assert.Equal(t, middleware.RateLimit{Requests: 100, Window: time.Minute}, defaults.Standard)
	assert.Equal(t, middleware.RateLimit{Requests: 10, Window: time.Minute}, defaults.Admin)

	custom := middleware.RateLimits{
		Plan:  middleware.RateLimit{Requests: 5, Window: time.Second},
		Admin: middleware.RateLimit{Requests: 3},
	}.WithDefaults()

	assert.Equal(t, middleware.RateLimit{Requests: 5, Window: time.Second}, custom.Plan)
	assert.Equal(t, defaults.Standard, custom.Standard)
	assert.Equal(t, defaults.Admin, custom.Admin, "a budget without a window is replaced")
}
