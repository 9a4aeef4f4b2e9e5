package itinerary

import (
	"strconv"
	"strings"
)

// ClassifyMode returns the display mode of an option. Walking options are Walk.
// A transit option with an explicit mode keeps it. Otherwise the route label
// decides: U-prefixed lines are U-Bahn, S-prefixed lines are S-Bahn, labels
// containing TRAM or plain numbers below 40 are Tram, and the rest are Bus.
func ClassifyMode(opt EdgeOption) Mode {
	if !opt.IsTransit() {
		return ModeWalk
	}
	if opt.Mode != "" {
		return opt.Mode
	}

	label := strings.ToUpper(strings.TrimSpace(opt.Route))
	switch {
	case strings.HasPrefix(label, "U"):
		return ModeUBahn
	case strings.HasPrefix(label, "S"):
		return ModeSBahn
	case strings.Contains(label, "TRAM"):
		return ModeTram
	case isSmallLineNumber(label):
		return ModeTram
	default:
		return ModeBus
	}
}

func isSmallLineNumber(label string) bool {
	if label == "" || strings.TrimLeft(label, "0123456789") != "" {
		return false
	}
	n, err := strconv.Atoi(label)
	return err == nil && n < 40
}

func legRoute(opt EdgeOption) string {
	if !opt.IsTransit() {
		return ""
	}
	return opt.Route
}

// GroupLegs merges consecutive hops sharing mode and route into legs. Walks are
// merged regardless of route. Each new leg starts at the last point of the
// previous one so that the legs stay contiguous.
func GroupLegs(hops []ProcessedHop) []Leg {
	if len(hops) == 0 {
		return nil
	}

	first := hops[0]
	legs := []Leg{{
		Mode:      ClassifyMode(first.Option),
		Route:     legRoute(first.Option),
		Waypoints: []Waypoint{waypointFromStop(first.From), waypointFromStop(first.To)},
	}}

	for _, hop := range hops[1:] {
		mode := ClassifyMode(hop.Option)
		route := legRoute(hop.Option)
		cur := &legs[len(legs)-1]

		if (mode == ModeWalk && cur.Mode == ModeWalk) || (mode == cur.Mode && route == cur.Route) {
			cur.Waypoints = append(cur.Waypoints, waypointFromStop(hop.To))
			continue
		}

		legs = append(legs, Leg{
			Mode:      mode,
			Route:     route,
			Waypoints: []Waypoint{cur.Last(), waypointFromStop(hop.To)},
		})
	}

	return legs
}

// AbsorbShortWalks folds transit, walk, transit windows on the same line into a
// single leg when the walk spans less than thresholdMeters. A walk whose length
// cannot be computed is kept. The scan resumes after a merged window.
func AbsorbShortWalks(legs []Leg, thresholdMeters float64) []Leg {
	out := make([]Leg, 0, len(legs))

	for i := 0; i < len(legs); {
		if i+2 < len(legs) && absorbable(legs[i], legs[i+1], legs[i+2], thresholdMeters) {
			a, walk, b := legs[i], legs[i+1], legs[i+2]
			wps := make([]Waypoint, 0, len(a.Waypoints)+len(walk.Waypoints)+len(b.Waypoints)-2)
			wps = append(wps, a.Waypoints...)
			wps = append(wps, walk.Waypoints[1:]...)
			wps = append(wps, b.Waypoints[1:]...)
			out = append(out, Leg{Mode: a.Mode, Route: a.Route, Waypoints: wps})
			i += 3
			continue
		}
		out = append(out, cloneLeg(legs[i]))
		i++
	}

	return out
}

func absorbable(a, walk, b Leg, thresholdMeters float64) bool {
	if a.IsWalk() || !walk.IsWalk() || b.IsWalk() {
		return false
	}
	if a.Mode != b.Mode || a.Route != b.Route {
		return false
	}
	d, err := Distance(walk.First().Coordinate(), walk.Last().Coordinate())
	if err != nil {
		return false
	}
	return d < thresholdMeters
}

func cloneLeg(l Leg) Leg {
	l.Waypoints = append([]Waypoint(nil), l.Waypoints...)
	return l
}

// MergeLegs runs both merge passes over the processed hops of a ranked candidate.
func (s *Synthesizer) MergeLegs(hops []ProcessedHop) []Leg {
	return AbsorbShortWalks(GroupLegs(hops), s.cfg.ShortWalkMeters)
}
