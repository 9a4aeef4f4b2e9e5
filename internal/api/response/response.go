// Package response writes JSON and Problem+JSON responses.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/api/middleware"
	"github.com/tramline/tramline/internal/api/models"
)

// JSON writes data with the given status code. The body is encoded before
// the header is sent, so a value that cannot be encoded becomes a 500
// problem rather than a truncated response.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if requestID := traceID(r); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}

	var body []byte
	if data != nil {
		var err error
		if body, err = json.Marshal(data); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("encoding response")
			InternalError(w, r, "response could not be encoded")
			return
		}
		body = append(body, '\n')
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Cacheable marks a response as cacheable by private caches for maxAge.
func Cacheable(w http.ResponseWriter, maxAge time.Duration) {
	w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(int(maxAge.Seconds())))
}

// Error writes a Problem+JSON error response. Problems are never cached,
// even when the handler marked the response cacheable before failing.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	w.Header().Set("Cache-Control", "no-store")
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(traceID(r), detail, errors))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(traceID(r), detail))
}

// NoRoute writes a 404 response for a plan without a route.
func NoRoute(w http.ResponseWriter, r *http.Request, detail, code string) {
	Error(w, r, models.NewNoRoute(traceID(r), detail).WithCode(code))
}

// Conflict writes a 409 Conflict error response.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewConflict(traceID(r), detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(traceID(r), detail))
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
// A positive retryAfter sets the Retry-After header.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail, code string, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	problem := models.NewServiceUnavailable(traceID(r), detail)
	if code != "" {
		problem = problem.WithCode(code)
	}
	Error(w, r, problem)
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}
