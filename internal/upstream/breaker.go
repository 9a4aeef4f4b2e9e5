// Package upstream guards calls to the services the planner depends on, the
// graph database and the GTFS feed host. Each upstream gets an HTTP client with
// bounded retries behind a circuit breaker, and a Registry keeps their health
// for the readiness and status endpoints.
package upstream

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig controls when an upstream circuit opens.
type BreakerConfig struct {
	// OpenTimeout is how long the circuit stays open before probing (default: 30s).
	OpenTimeout time.Duration

	// Probes is the number of requests let through while half-open (default: 1).
	Probes uint32

	// ConsecutiveFailures opens the circuit after this many failures in a row (default: 3).
	ConsecutiveFailures uint32

	// MinRequests is the sample size before FailureRatio applies (default: 5).
	MinRequests uint32

	// FailureRatio opens the circuit once this share of requests failed (default: 0.5).
	FailureRatio float64

	// Window resets the closed-state counts periodically. Zero keeps them until a state change.
	Window time.Duration
}

// DefaultBreakerConfig returns the breaker settings used for every upstream.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		OpenTimeout:         30 * time.Second,
		Probes:              1,
		ConsecutiveFailures: 3,
		MinRequests:         5,
		FailureRatio:        0.5,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.Probes == 0 {
		c.Probes = d.Probes
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = d.ConsecutiveFailures
	}
	if c.MinRequests == 0 {
		c.MinRequests = d.MinRequests
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = d.FailureRatio
	}
	return c
}

// shouldTrip opens the circuit on a failure streak or on a high failure ratio.
func (c BreakerConfig) shouldTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	if counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

func newBreaker(name string, cfg BreakerConfig, onChange func(from, to gobreaker.State)) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.Probes,
		Interval:    cfg.Window,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: cfg.shouldTrip,
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if onChange != nil {
				onChange(from, to)
			}
		},
	})
}
