// Package graph is the boundary to the weighted stop graph. An Engine answers
// k-shortest-paths queries and lists the parallel edge options between stops.
package graph

import (
	"context"
	"errors"

	"github.com/tramline/tramline/internal/itinerary"
)

// Sentinel errors for graph operations.
var (
	// ErrEngineUnavailable indicates the graph engine is down or the circuit breaker is open.
	ErrEngineUnavailable = errors.New("graph engine unavailable")
	// ErrStopUnknown indicates a stop id is not a node of the graph.
	ErrStopUnknown = errors.New("stop not in graph")
	// ErrQueryFailed indicates the engine rejected a query.
	ErrQueryFailed = errors.New("graph query failed")
)

// Engine defines the interface for graph engines.
type Engine interface {
	// KShortestPaths returns up to k loopless stop sequences from one stop to
	// another, cheapest first. An empty result means the stops are not connected.
	KShortestPaths(ctx context.Context, fromID, toID string, k int) ([]itinerary.CandidatePath, error)

	// EdgeOptions returns the options of every requested pair. Pairs without
	// any edge are absent from the result.
	EdgeOptions(ctx context.Context, pairs []StopPair) (map[StopPair][]itinerary.EdgeOption, error)

	// Name returns the engine identifier for logging and metrics.
	Name() string
}

// StopPair is an ordered pair of adjacent stop ids.
type StopPair struct {
	From string
	To   string
}

func (p StopPair) key() string {
	return p.From + "\x00" + p.To
}

// Error provides detailed error information from a graph engine.
type Error struct {
	Engine  string // Engine that generated the error
	Code    string // Error code from the engine
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrEngineUnavailable)
}
