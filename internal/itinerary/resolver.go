package itinerary

import "sort"

// StopDistance pairs a stop with its distance from a query point.
type StopDistance struct {
	Stop           Stop
	DistanceMeters float64
}

// Resolver finds stops close to arbitrary coordinates with a linear scan.
// It never modifies the catalog slice and is safe for concurrent use.
type Resolver struct {
	stops []Stop
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(stops []Stop) *Resolver {
	return &Resolver{stops: stops}
}

// Len returns the number of stops in the catalog.
func (r *Resolver) Len() int {
	return len(r.stops)
}

// Resolve returns the stop closest to (lat, lon) and its distance in meters.
// Stops with malformed coordinates are skipped. Among stops at exactly equal
// distance the first in catalog order wins.
func (r *Resolver) Resolve(lat, lon float64) (Stop, float64, bool) {
	q := Coordinate{Lat: lat, Lon: lon}

	var (
		best     Stop
		bestDist float64
		found    bool
	)
	for _, s := range r.stops {
		d, err := Distance(q, s.Coordinate())
		if err != nil {
			continue
		}
		if !found || d < bestDist {
			best, bestDist, found = s, d, true
		}
	}
	return best, bestDist, found
}

// Within returns the stops within radiusMeters of (lat, lon), closest first.
// Equal distances keep catalog order. A limit of zero or less returns all matches.
func (r *Resolver) Within(lat, lon, radiusMeters float64, limit int) []StopDistance {
	q := Coordinate{Lat: lat, Lon: lon}

	var out []StopDistance
	for _, s := range r.stops {
		d, err := Distance(q, s.Coordinate())
		if err != nil || d > radiusMeters {
			continue
		}
		out = append(out, StopDistance{Stop: s, DistanceMeters: d})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceMeters < out[j].DistanceMeters
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
