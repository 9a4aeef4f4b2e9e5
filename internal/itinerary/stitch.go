package itinerary

// StitchStart prepends the walk from an off-network origin to its resolved stop.
// Nothing is added when the walk is shorter than minMeters. An existing leading
// walk leg absorbs the origin point instead of getting a second walk leg.
func StitchStart(legs []Leg, origin Coordinate, stop Stop, minMeters float64) []Leg {
	out := cloneLegs(legs)
	if tooShort(origin, stop, minMeters) {
		return out
	}

	raw := Waypoint{Lat: origin.Lat, Lon: origin.Lon, Name: "Start"}
	if len(out) > 0 && out[0].IsWalk() {
		out[0].Waypoints = append([]Waypoint{raw}, out[0].Waypoints...)
		return out
	}

	walk := Leg{Mode: ModeWalk, Waypoints: []Waypoint{raw, waypointFromStop(stop)}}
	return append([]Leg{walk}, out...)
}

// StitchEnd appends the walk from the resolved stop to an off-network destination.
// The rules mirror StitchStart.
func StitchEnd(legs []Leg, destination Coordinate, stop Stop, minMeters float64) []Leg {
	out := cloneLegs(legs)
	if tooShort(destination, stop, minMeters) {
		return out
	}

	raw := Waypoint{Lat: destination.Lat, Lon: destination.Lon, Name: "Destination"}
	if n := len(out); n > 0 && out[n-1].IsWalk() {
		out[n-1].Waypoints = append(out[n-1].Waypoints, raw)
		return out
	}

	walk := Leg{Mode: ModeWalk, Waypoints: []Waypoint{waypointFromStop(stop), raw}}
	return append(out, walk)
}

// tooShort reports whether the walk can be skipped. An unmeasurable walk is kept.
func tooShort(c Coordinate, stop Stop, minMeters float64) bool {
	d, err := Distance(c, stop.Coordinate())
	if err != nil {
		return false
	}
	return d < minMeters
}

func cloneLegs(legs []Leg) []Leg {
	out := make([]Leg, len(legs))
	for i := range legs {
		out[i] = cloneLeg(legs[i])
	}
	return out
}

// Synthesize ranks the candidates, merges the winner into legs and stitches the
// access and egress walks for off-network endpoints. A nil origin or destination
// means the endpoint is the stop itself.
func (s *Synthesizer) Synthesize(candidates []Candidate, origin, destination *Endpoint) (Itinerary, RankStats, error) {
	best, stats, err := s.Rank(candidates)
	if err != nil {
		return Itinerary{}, stats, err
	}

	legs := s.MergeLegs(best.Hops)
	if origin != nil {
		legs = StitchStart(legs, origin.Coordinate, origin.Stop, s.cfg.MinStitchMeters)
	}
	if destination != nil {
		legs = StitchEnd(legs, destination.Coordinate, destination.Stop, s.cfg.MinStitchMeters)
	}

	return Itinerary{
		Legs: legs,
		Summary: Summary{
			Score:                  best.Score,
			RideTime:               best.RideTime,
			RideMinutes:            best.RideTime / 60,
			Transfers:              best.Transfers,
			CandidateIndex:         best.Index,
			CandidatesEvaluated:    stats.Evaluated,
			CandidatesDisqualified: len(stats.Disqualified),
		},
	}, stats, nil
}

// Endpoint is an off-network coordinate and the stop it was resolved to.
type Endpoint struct {
	Coordinate Coordinate
	Stop       Stop
}
