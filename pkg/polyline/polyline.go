// Package polyline encodes leg geometry in Google's polyline format.
// The format is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"fmt"
	"math"

	gpolyline "github.com/twpayne/go-polyline"
)

// Coordinate represents a geographic point with latitude and longitude.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Encode encodes coordinates with 5 decimal places of precision.
// Non-finite or out-of-range points are left out.
func Encode(coords []Coordinate) string {
	points := make([][]float64, 0, len(coords))
	for _, c := range coords {
		if !c.valid() {
			continue
		}
		points = append(points, []float64{c.Lat, c.Lon})
	}
	if len(points) == 0 {
		return ""
	}
	return string(gpolyline.EncodeCoords(points))
}

func (c Coordinate) valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Decode decodes a polyline-encoded string into coordinates.
func Decode(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	points, rest, err := gpolyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decoding polyline: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("decoding polyline: %d trailing bytes", len(rest))
	}

	coords := make([]Coordinate, len(points))
	for i, p := range points {
		coords[i] = Coordinate{Lat: p[0], Lon: p[1]}
	}
	return coords, nil
}
