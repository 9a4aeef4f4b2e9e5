package itinerary_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramline/tramline/internal/itinerary"
)

func TestDistance(t *testing.T) {
	// Marienplatz to Karlsplatz (Stachus) is roughly 750 m.
	d, err := itinerary.Distance(
		itinerary.Coordinate{Lat: 48.1374, Lon: 11.5755},
		itinerary.Coordinate{Lat: 48.1391, Lon: 11.5655},
	)
	require.NoError(t, err)
	assert.InDelta(t, 765, d, 20)

	_, err = itinerary.Distance(itinerary.Coordinate{Lat: math.NaN()}, itinerary.Coordinate{})
	assert.ErrorIs(t, err, itinerary.ErrGeometry)

	_, err = itinerary.Distance(itinerary.Coordinate{}, itinerary.Coordinate{Lat: 91})
	assert.ErrorIs(t, err, itinerary.ErrGeometry)
}

func TestResolver_Resolve(t *testing.T) {
	origin := itinerary.Coordinate{Lat: 48.1374, Lon: 11.5755}
	near := stopAt("near", itinerary.Offset(origin, 120, 0))
	far := stopAt("far", itinerary.Offset(origin, 900, 0))
	broken := itinerary.Stop{ID: "broken", Lat: math.NaN(), Lon: 11.5}

	r := itinerary.NewResolver([]itinerary.Stop{broken, far, near})

	stop, dist, ok := r.Resolve(origin.Lat, origin.Lon)
	require.True(t, ok)
	assert.Equal(t, "near", stop.ID)
	assert.InDelta(t, 120, dist, 0.5)
}

func TestResolver_FirstMinimumWins(t *testing.T) {
	origin := itinerary.Coordinate{Lat: 48.1374, Lon: 11.5755}
	p := itinerary.Offset(origin, 50, 50)
	first := stopAt("first", p)
	second := stopAt("second", p)

	stop, _, ok := itinerary.NewResolver([]itinerary.Stop{first, second}).Resolve(origin.Lat, origin.Lon)
	require.True(t, ok)
	assert.Equal(t, "first", stop.ID)
}

func TestResolver_NothingFound(t *testing.T) {
	tests := []struct {
		name  string
		stops []itinerary.Stop
	}{
		{"empty catalog", nil},
		{"only malformed stops", []itinerary.Stop{{ID: "x", Lat: 200, Lon: 0}, {ID: "y", Lat: math.NaN()}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := itinerary.NewResolver(tt.stops).Resolve(48.1, 11.5)
			assert.False(t, ok)
		})
	}
}

func TestResolver_Within(t *testing.T) {
	origin := itinerary.Coordinate{Lat: 48.1374, Lon: 11.5755}
	stops := []itinerary.Stop{
		stopAt("d400", itinerary.Offset(origin, 400, 0)),
		stopAt("d100", itinerary.Offset(origin, 0, 100)),
		stopAt("d900", itinerary.Offset(origin, -900, 0)),
		stopAt("d250", itinerary.Offset(origin, -250, 0)),
	}
	r := itinerary.NewResolver(stops)

	got := r.Within(origin.Lat, origin.Lon, 500, 0)
	require.Len(t, got, 3)
	assert.Equal(t, "d100", got[0].Stop.ID)
	assert.Equal(t, "d250", got[1].Stop.ID)
	assert.Equal(t, "d400", got[2].Stop.ID)

	limited := r.Within(origin.Lat, origin.Lon, 500, 2)
	assert.Len(t, limited, 2)
}
