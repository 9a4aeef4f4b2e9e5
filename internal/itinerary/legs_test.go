package itinerary_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramline/tramline/internal/itinerary"
)

func stopAt(id string, c itinerary.Coordinate) itinerary.Stop {
	return itinerary.Stop{ID: id, Name: "Stop " + id, Lat: c.Lat, Lon: c.Lon}
}

func processed(from, to itinerary.Stop, opt itinerary.EdgeOption) itinerary.ProcessedHop {
	return itinerary.ProcessedHop{From: from, To: to, Option: opt, Weight: opt.Weight}
}

func waypoint(s itinerary.Stop) itinerary.Waypoint {
	return itinerary.Waypoint{Lat: s.Lat, Lon: s.Lon, Name: s.Name, StopID: s.ID}
}

func TestClassifyMode(t *testing.T) {
	tests := []struct {
		name string
		opt  itinerary.EdgeOption
		want itinerary.Mode
	}{
		{"walk", walk(10), itinerary.ModeWalk},
		{"u-bahn", transit("U3", 1), itinerary.ModeUBahn},
		{"lowercase u-bahn", transit("u6", 1), itinerary.ModeUBahn},
		{"s-bahn", transit("S8", 1), itinerary.ModeSBahn},
		{"tram keyword", transit("Tram 19", 1), itinerary.ModeTram},
		{"small number", transit("27", 1), itinerary.ModeTram},
		{"number at limit", transit("39", 1), itinerary.ModeTram},
		{"number above limit", transit("40", 1), itinerary.ModeBus},
		{"metro bus", transit("N40", 1), itinerary.ModeBus},
		{"bus number", transit("150", 1), itinerary.ModeBus},
		{"explicit mode wins", itinerary.EdgeOption{Kind: itinerary.KindTransit, Route: "12", Mode: itinerary.ModeBus}, itinerary.ModeBus},
		{"explicit mode ignored for walks", itinerary.EdgeOption{Kind: itinerary.KindWalk, Mode: itinerary.ModeBus}, itinerary.ModeWalk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, itinerary.ClassifyMode(tt.opt))
		})
	}
}

func TestGroupLegs_MergesAdjacentHops(t *testing.T) {
	origin := itinerary.Coordinate{Lat: 48.1374, Lon: 11.5755}
	s := make([]itinerary.Stop, 8)
	for i := range s {
		s[i] = stopAt(string(rune('A'+i)), itinerary.Offset(origin, float64(i)*400, 0))
	}

	hops := []itinerary.ProcessedHop{
		processed(s[0], s[1], walk(60)),
		processed(s[1], s[2], itinerary.EdgeOption{Kind: itinerary.KindWalk, Route: "", Weight: 40}),
		processed(s[2], s[3], transit("U3", 90)),
		processed(s[3], s[4], transit("U3", 90)),
		processed(s[4], s[5], transit("U6", 90)),
		processed(s[5], s[6], transit("U6", 90)),
		processed(s[6], s[7], walk(120)),
	}

	legs := itinerary.GroupLegs(hops)
	require.Len(t, legs, 4)

	assert.Equal(t, itinerary.ModeWalk, legs[0].Mode)
	assert.Equal(t, []itinerary.Waypoint{waypoint(s[0]), waypoint(s[1]), waypoint(s[2])}, legs[0].Waypoints)

	assert.Equal(t, itinerary.ModeUBahn, legs[1].Mode)
	assert.Equal(t, "U3", legs[1].Route)
	assert.Equal(t, []itinerary.Waypoint{waypoint(s[2]), waypoint(s[3]), waypoint(s[4])}, legs[1].Waypoints)

	assert.Equal(t, "U6", legs[2].Route)
	assert.Equal(t, itinerary.ModeWalk, legs[3].Mode)

	total := 0
	for i, leg := range legs {
		assert.GreaterOrEqual(t, len(leg.Waypoints), 2)
		total += len(leg.Waypoints)
		if i > 0 {
			assert.Equal(t, legs[i-1].Last(), leg.First(), "legs %d and %d are not contiguous", i-1, i)
			assert.False(t, legs[i-1].Mode == leg.Mode && legs[i-1].Route == leg.Route)
		}
	}
	// Each boundary point is shared by two legs; no waypoint is dropped.
	assert.Equal(t, len(hops)+1, total-(len(legs)-1))
}

func TestGroupLegs_Empty(t *testing.T) {
	assert.Empty(t, itinerary.GroupLegs(nil))
}

func TestGroupLegs_DoesNotMutateInput(t *testing.T) {
	hops := []itinerary.ProcessedHop{
		processed(stopA, stopB, transit("U3", 90)),
		processed(stopB, stopC, transit("U3", 90)),
	}
	before := append([]itinerary.ProcessedHop(nil), hops...)

	_ = itinerary.GroupLegs(hops)

	assert.Equal(t, before, hops)
}

// bridgedLegs builds U3, walk, U3 legs whose walk spans walkMeters.
func bridgedLegs(walkMeters float64) []itinerary.Leg {
	p0 := itinerary.Coordinate{Lat: 48.1374, Lon: 11.5755}
	p1 := itinerary.Offset(p0, 1500, 0)
	p2 := itinerary.Offset(p1, walkMeters, 0)
	p3 := itinerary.Offset(p2, 1500, 0)
	a, b, c, d := stopAt("P0", p0), stopAt("P1", p1), stopAt("P2", p2), stopAt("P3", p3)

	return []itinerary.Leg{
		{Mode: itinerary.ModeUBahn, Route: "U3", Waypoints: []itinerary.Waypoint{waypoint(a), waypoint(b)}},
		{Mode: itinerary.ModeWalk, Waypoints: []itinerary.Waypoint{waypoint(b), waypoint(c)}},
		{Mode: itinerary.ModeUBahn, Route: "U3", Waypoints: []itinerary.Waypoint{waypoint(c), waypoint(d)}},
	}
}

func TestAbsorbShortWalks_Boundary(t *testing.T) {
	tests := []struct {
		name       string
		walkMeters float64
		absorbed   bool
	}{
		{"short platform change", 40, true},
		{"just under threshold", 299, true},
		{"just over threshold", 301, false},
		{"long walk", 900, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			legs := itinerary.AbsorbShortWalks(bridgedLegs(tt.walkMeters), 300)

			if !tt.absorbed {
				assert.Len(t, legs, 3)
				return
			}
			require.Len(t, legs, 1)
			assert.Equal(t, "U3", legs[0].Route)
			assert.Len(t, legs[0].Waypoints, 4, "boundary duplicates are dropped")
		})
	}
}

func TestAbsorbShortWalks_ExactThresholdIsNotAbsorbed(t *testing.T) {
	legs := bridgedLegs(300)
	walkLen, err := itinerary.Distance(legs[1].First().Coordinate(), legs[1].Last().Coordinate())
	require.NoError(t, err)

	assert.Len(t, itinerary.AbsorbShortWalks(legs, walkLen), 3)
	assert.Len(t, itinerary.AbsorbShortWalks(legs, math.Nextafter(walkLen, math.Inf(1))), 1)
}

func TestAbsorbShortWalks_RequiresSameLine(t *testing.T) {
	legs := bridgedLegs(40)
	legs[2].Route = "U6"

	assert.Len(t, itinerary.AbsorbShortWalks(legs, 300), 3)
}

func TestAbsorbShortWalks_BadGeometryIsKept(t *testing.T) {
	legs := bridgedLegs(40)
	legs[1].Waypoints[1].Lat = math.NaN()

	assert.Len(t, itinerary.AbsorbShortWalks(legs, 300), 3)
}

func TestAbsorbShortWalks_ResumesAfterMergedWindow(t *testing.T) {
	legs := bridgedLegs(40)
	tail := bridgedLegs(40)
	tail[0].Waypoints[0] = legs[2].Last()
	legs = append(legs, itinerary.Leg{Mode: itinerary.ModeWalk, Waypoints: []itinerary.Waypoint{legs[2].Last(), tail[0].First()}})
	legs = append(legs, tail...)

	out := itinerary.AbsorbShortWalks(legs, 300)

	// The first window merges; the walk after it starts no new window.
	require.Len(t, out, 3)
	assert.Equal(t, "U3", out[0].Route)
	assert.True(t, out[1].IsWalk())
	assert.Equal(t, "U3", out[2].Route)
}

// mergeAcrossShortWalk rides route 12 from A to B, walks 40 m to C and rides
// route 12 again to D, with mode as the edge hint.
func mergeAcrossShortWalk(t *testing.T, mode itinerary.Mode) []itinerary.Leg {
	t.Helper()
	a := stopAt("A", itinerary.Coordinate{Lat: 48.1374, Lon: 11.5755})
	b := stopAt("B", itinerary.Offset(a.Coordinate(), 900, 0))
	c := stopAt("C", itinerary.Offset(b.Coordinate(), 40, 0))
	d := stopAt("D", itinerary.Offset(c.Coordinate(), 700, 0))

	line12 := func(w float64) itinerary.EdgeOption {
		return itinerary.EdgeOption{Kind: itinerary.KindTransit, Route: "12", Weight: w, Mode: mode}
	}

	s := itinerary.NewSynthesizer(itinerary.DefaultConfig())
	res, err := s.Score(itinerary.Candidate{
		Path: itinerary.CandidatePath{a, b, c, d},
		Hops: []itinerary.Hop{
			hop(a, b, line12(300)),
			hop(b, c, walk(50)),
			hop(c, d, line12(200)),
		},
	})
	require.NoError(t, err)

	return s.MergeLegs(res.Hops)
}

func TestMergeLegs_WalkBetweenSameBusLine(t *testing.T) {
	legs := mergeAcrossShortWalk(t, itinerary.ModeBus)

	require.Len(t, legs, 1)
	assert.Equal(t, itinerary.ModeBus, legs[0].Mode)
	assert.Equal(t, "12", legs[0].Route)
	assert.Equal(t, "A", legs[0].First().StopID)
	assert.Equal(t, "D", legs[0].Last().StopID)
	assert.Equal(t, []string{"A", "B", "C", "D"}, stopIDs(legs[0]))
}

func TestMergeLegs_WalkBetweenSameLineWithoutModeHint(t *testing.T) {
	legs := mergeAcrossShortWalk(t, "")

	// Numeric labels below 40 classify as Tram when the edge carries no mode.
	require.Len(t, legs, 1)
	assert.Equal(t, itinerary.ModeTram, legs[0].Mode)
	assert.Equal(t, "12", legs[0].Route)
	assert.Equal(t, []string{"A", "B", "C", "D"}, stopIDs(legs[0]))
}

func stopIDs(l itinerary.Leg) []string {
	ids := make([]string, len(l.Waypoints))
	for i, w := range l.Waypoints {
		ids[i] = w.StopID
	}
	return ids
}
