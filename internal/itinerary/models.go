// Package itinerary turns candidate stop sequences from the graph engine into a
// single presentable itinerary: per-hop service selection, candidate scoring and
// ranking, leg merging and off-network walk stitching.
//
// Everything in this package is pure computation over in-memory values. Network
// access, caching and logging belong to the callers in planner and graph.
package itinerary

import (
	"errors"
	"math"
)

// Sentinel errors for itinerary synthesis.
var (
	// ErrNoPath indicates there is no candidate left to build an itinerary from.
	ErrNoPath = errors.New("no path found")
	// ErrDegenerateHop indicates a hop without any edge option.
	ErrDegenerateHop = errors.New("hop has no edge options")
	// ErrGeometry indicates a distance could not be computed from the given coordinates.
	ErrGeometry = errors.New("invalid geometry")
)

// Coordinate represents a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Stop is a transit stop from the catalog. The ID is opaque to the engine.
type Stop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

// Coordinate returns the stop position.
func (s Stop) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lon: s.Lon}
}

// EdgeKind distinguishes walking edges from transit edges.
type EdgeKind string

const (
	// KindWalk is a walking connection between two stops.
	KindWalk EdgeKind = "walk"
	// KindTransit is a ride on a transit line.
	KindTransit EdgeKind = "transit"
)

// Mode is the display category of a leg.
type Mode string

const (
	ModeWalk  Mode = "Walk"
	ModeBus   Mode = "Bus"
	ModeTram  Mode = "Tram"
	ModeUBahn Mode = "U-Bahn"
	ModeSBahn Mode = "S-Bahn"
)

// EdgeOption is one way of traversing a hop.
type EdgeOption struct {
	Kind EdgeKind
	// Route is the line name for transit options. Empty or "Walk" for walking.
	Route string
	// Weight is the traversal cost. Negative or NaN means unknown.
	Weight float64
	// Mode optionally overrides the label based mode classification.
	Mode Mode
}

// IsTransit reports whether the option rides a transit line.
func (o EdgeOption) IsTransit() bool {
	return o.Kind == KindTransit
}

// Hop is one edge of a candidate path with every option the graph offers for it.
type Hop struct {
	From    Stop
	To      Stop
	Options []EdgeOption
}

// Action describes what the traveler does on a processed hop.
type Action string

const (
	ActionBoard    Action = "board"
	ActionTransfer Action = "transfer"
	ActionContinue Action = "continue"
	ActionWalk     Action = "walk"
)

// ProcessedHop is a hop with exactly one selected option.
type ProcessedHop struct {
	From   Stop
	To     Stop
	Option EdgeOption
	// Weight is the effective weight of the option and is never negative.
	Weight float64
	// Cost is the score contribution including penalties.
	Cost   float64
	Action Action
}

// CandidatePath is an ordered stop sequence returned by a k-shortest-paths query.
type CandidatePath []Stop

// Candidate is a candidate path together with the options of each of its hops.
type Candidate struct {
	Path CandidatePath
	Hops []Hop
}

// PathResult is the scored form of one candidate.
type PathResult struct {
	// Index is the position of the candidate in the ranked batch.
	Index     int
	Score     float64
	RideTime  float64
	Transfers int
	Hops      []ProcessedHop
}

// Waypoint is a point along a leg.
type Waypoint struct {
	Lat    float64
	Lon    float64
	Name   string
	StopID string
}

// Coordinate returns the waypoint position.
func (w Waypoint) Coordinate() Coordinate {
	return Coordinate{Lat: w.Lat, Lon: w.Lon}
}

func waypointFromStop(s Stop) Waypoint {
	return Waypoint{Lat: s.Lat, Lon: s.Lon, Name: s.Name, StopID: s.ID}
}

// Leg is a run of hops sharing one mode and route.
type Leg struct {
	Mode      Mode
	Route     string
	Waypoints []Waypoint
}

// IsWalk reports whether the leg is a walking leg.
func (l Leg) IsWalk() bool {
	return l.Mode == ModeWalk
}

// First returns the first waypoint of the leg.
func (l Leg) First() Waypoint {
	return l.Waypoints[0]
}

// Last returns the last waypoint of the leg.
func (l Leg) Last() Waypoint {
	return l.Waypoints[len(l.Waypoints)-1]
}

// DistanceMeters sums the great-circle distance between consecutive waypoints.
// Segments whose distance cannot be computed are left out.
func (l Leg) DistanceMeters() float64 {
	total := 0.0
	for i := 1; i < len(l.Waypoints); i++ {
		d, err := Distance(l.Waypoints[i-1].Coordinate(), l.Waypoints[i].Coordinate())
		if err != nil {
			continue
		}
		total += d
	}
	return total
}

// Summary carries the statistics of the selected candidate.
type Summary struct {
	Score float64
	// RideTime is the summed raw weight of all hops.
	RideTime               float64
	RideMinutes            float64
	Transfers              int
	CandidateIndex         int
	CandidatesEvaluated    int
	CandidatesDisqualified int
}

// Itinerary is the final leg list with its summary.
type Itinerary struct {
	Legs    []Leg
	Summary Summary
}

// Config holds the cost model and geometry thresholds.
type Config struct {
	// BoardingPenalty is added when boarding transit from a non-transit state (default: 0).
	BoardingPenalty float64 `yaml:"boarding_penalty" validate:"gte=0"`

	// TransferPenalty is added when switching directly between transit lines (default: 600).
	TransferPenalty float64 `yaml:"transfer_penalty" validate:"gte=0"`

	// WalkingFactor multiplies walking weights (default: 0.2).
	WalkingFactor float64 `yaml:"walking_factor" validate:"gte=0"`

	// MissingWeight replaces unknown option weights (default: 9999).
	MissingWeight float64 `yaml:"missing_weight" validate:"gte=0"`

	// ShortWalkMeters is the absorption threshold of the second merge pass (default: 300).
	ShortWalkMeters float64 `yaml:"short_walk_meters" validate:"gte=0"`

	// MinStitchMeters is the shortest access or egress walk that gets a leg (default: 5).
	MinStitchMeters float64 `yaml:"min_stitch_meters" validate:"gte=0"`

	// ParallelRanking scores candidates concurrently. Selection order is unchanged.
	ParallelRanking bool `yaml:"parallel_ranking"`
}

// DefaultConfig returns the default cost model.
func DefaultConfig() Config {
	return Config{
		BoardingPenalty: 0,
		TransferPenalty: 600,
		WalkingFactor:   0.2,
		MissingWeight:   9999,
		ShortWalkMeters: 300,
		MinStitchMeters: 5,
	}
}

// effectiveWeight maps unknown weights to the missing weight sentinel.
func (c Config) effectiveWeight(w float64) float64 {
	if w < 0 || math.IsNaN(w) {
		return c.MissingWeight
	}
	return w
}
