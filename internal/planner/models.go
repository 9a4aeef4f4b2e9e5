// Package planner answers trip requests: it resolves the endpoints against the
// stop catalog, asks the graph for candidates and synthesizes an itinerary.
package planner

import (
	"context"
	"errors"
	"time"

	"github.com/tramline/tramline/internal/itinerary"
	"github.com/tramline/tramline/internal/stops"
)

// Sentinel errors for planning.
var (
	// ErrInvalidInput indicates a malformed or incomplete request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates no stop or no route could be found.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable indicates the graph engine or the catalog failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Error codes reported by the planner.
const (
	CodeMissingEndpoint   = "MISSING_ENDPOINT"
	CodeInvalidCoordinate = "INVALID_COORDINATE"
	CodeUnknownStop       = "UNKNOWN_STOP"
	CodeNoNearbyStop      = "NO_NEARBY_STOP"
	CodeNoRoute           = "NO_ROUTE"
	CodeCatalogUnloaded   = "CATALOG_UNLOADED"
	CodeGraphUnavailable  = "GRAPH_UNAVAILABLE"
)

// Error provides detailed information about a failed plan.
type Error struct {
	Code    string // Machine readable code
	Field   string // Request field at fault, if any
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

// Catalog is the stop catalog as seen by the planner.
type Catalog interface {
	Snapshot() (*stops.Snapshot, error)
}

// CandidateSource returns candidate paths with their hop options.
type CandidateSource interface {
	Candidates(ctx context.Context, fromID, toID string, k int) ([]itinerary.Candidate, error)
	EngineName() string
}

// Endpoint is one end of a trip: a stop id or a coordinate.
type Endpoint struct {
	StopID string
	Lat    *float64
	Lon    *float64
}

// HasCoordinate reports whether both coordinate parts are set.
func (e Endpoint) HasCoordinate() bool {
	return e.Lat != nil && e.Lon != nil
}

// Request is a trip planning request.
type Request struct {
	From Endpoint
	To   Endpoint
	// K overrides the number of candidates; zero uses the configured default.
	K int
}

// ResolvedEndpoint is an endpoint after resolution against the catalog.
type ResolvedEndpoint struct {
	Stop itinerary.Stop
	// Coordinate is set for coordinate endpoints.
	Coordinate *itinerary.Coordinate
	// DistanceMeters is the distance from the coordinate to the stop.
	DistanceMeters float64
}

// Result is a planned itinerary.
type Result struct {
	ID        string
	Itinerary itinerary.Itinerary
	From      ResolvedEndpoint
	To        ResolvedEndpoint
	Engine    string
	PlannedAt time.Time
	Duration  time.Duration
}
