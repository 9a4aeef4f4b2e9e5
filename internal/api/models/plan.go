package models

// Endpoint is one end of a plan request. A stop id takes precedence over a coordinate.
type Endpoint struct {
	StopID string   `json:"stopId,omitempty" validate:"omitempty,max=64"`
	Lat    *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lon    *float64 `json:"lon,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

// PlanRequest is the body of POST /v1/plan.
type PlanRequest struct {
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
	// K is the number of candidate paths to rank (optional).
	K int `json:"k,omitempty" validate:"omitempty,gte=1,lte=20"`
}

// PlanResponse is a planned itinerary.
type PlanResponse struct {
	ID        string           `json:"id"`
	PlannedAt Timestamp        `json:"plannedAt"`
	Engine    string           `json:"engine"`
	From      ResolvedEndpoint `json:"from"`
	To        ResolvedEndpoint `json:"to"`
	Legs      []Leg            `json:"legs"`
	Summary   PlanSummary      `json:"summary"`
}

// ResolvedEndpoint is the stop an endpoint was resolved to.
type ResolvedEndpoint struct {
	Stop Stop `json:"stop"`
	// Coordinate is the requested point when the endpoint was not a stop id.
	Coordinate *Coordinate `json:"coordinate,omitempty"`
	// DistanceMeters is the distance from Coordinate to Stop.
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
}

// Leg is a run of the itinerary on one mode and route.
type Leg struct {
	Mode           string     `json:"mode"`
	Route          string     `json:"route,omitempty"`
	From           Waypoint   `json:"from"`
	To             Waypoint   `json:"to"`
	Waypoints      []Waypoint `json:"waypoints"`
	DistanceMeters float64    `json:"distanceMeters"`
	// Polyline is the waypoint sequence in Google polyline encoding.
	Polyline string `json:"polyline"`
}

// Waypoint is a point along a leg. StopID is empty for off-network points,
// and Lat and Lon are omitted when the stop has no usable coordinates.
type Waypoint struct {
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
	Name   string   `json:"name,omitempty"`
	StopID string   `json:"stopId,omitempty"`
}

// PlanSummary carries the statistics of the selected candidate.
type PlanSummary struct {
	Score                  float64 `json:"score"`
	RideTimeSeconds        float64 `json:"rideTimeSeconds"`
	RideMinutes            float64 `json:"rideMinutes"`
	Transfers              int     `json:"transfers"`
	CandidateIndex         int     `json:"candidateIndex"`
	CandidatesEvaluated    int     `json:"candidatesEvaluated"`
	CandidatesDisqualified int     `json:"candidatesDisqualified"`
	ComputeMillis          int64   `json:"computeMillis"`
}
