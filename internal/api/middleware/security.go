package middleware

import (
	"net/http"

	"github.com/tramline/tramline/internal/api/models"
)

// SecurityHeaders sets the response headers of a JSON only API. Responses are
// not cacheable unless a handler opts in with its own Cache-Control.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects plain HTTP requests when enabled. Behind a load balancer
// the scheme comes from X-Forwarded-Proto; a request with neither TLS nor the
// header is a direct connection from inside the cluster and passes.
func RequireTLS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proto := r.Header.Get("X-Forwarded-Proto")
			if r.TLS == nil && proto != "" && proto != "https" {
				writeProblem(w, r, models.NewTLSRequired(GetRequestID(r.Context())))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
