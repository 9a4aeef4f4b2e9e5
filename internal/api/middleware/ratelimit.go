package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tramline/tramline/internal/api/models"
)

// RateLimit is a request budget per key and window.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimits holds the budgets of the three endpoint classes.
type RateLimits struct {
	// Plan covers itinerary planning, which may query the graph engine.
	Plan RateLimit
	// Standard covers catalog reads.
	Standard RateLimit
	// Admin is applied per operator.
	Admin RateLimit
}

// DefaultRateLimits returns the budgets used when none are configured.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Plan:     RateLimit{Requests: 30, Window: time.Minute},
		Standard: RateLimit{Requests: 100, Window: time.Minute},
		Admin:    RateLimit{Requests: 10, Window: time.Minute},
	}
}

// WithDefaults fills unset budgets from DefaultRateLimits.
func (l RateLimits) WithDefaults() RateLimits {
	d := DefaultRateLimits()
	fill := func(v *RateLimit, def RateLimit) {
		if v.Requests <= 0 || v.Window <= 0 {
			*v = def
		}
	}
	fill(&l.Plan, d.Plan)
	fill(&l.Standard, d.Standard)
	fill(&l.Admin, d.Admin)
	return l
}

// RateLimitByIP limits requests per client address. It relies on chi's
// RealIP middleware having resolved forwarded addresses.
func RateLimitByIP(limit RateLimit) func(http.Handler) http.Handler {
	return httprate.Limit(limit.Requests, limit.Window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(limit)),
	)
}

// RateLimitByOperator limits requests per authenticated operator and falls
// back to the client address. It must run after RequireScope.
func RateLimitByOperator(limit RateLimit) func(http.Handler) http.Handler {
	return httprate.Limit(limit.Requests, limit.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if op := GetOperator(r.Context()); op != "" {
				return "operator:" + op, nil
			}
			return httprate.KeyByRealIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded(limit)),
	)
}

// limitExceeded answers with a problem and a Retry-After of one window,
// the longest a client may have to wait.
func limitExceeded(limit RateLimit) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(limit.Window.Round(time.Second).Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", retryAfter)
		writeProblem(w, r, models.NewTooManyRequests(GetRequestID(r.Context()), "rate limit exceeded, retry later"))
	}
}
