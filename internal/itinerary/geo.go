package itinerary

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371008.8

// ValidCoordinate reports whether c is a finite point within latitude and longitude ranges.
func ValidCoordinate(c Coordinate) bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Coordinate) (float64, error) {
	if !ValidCoordinate(a) {
		return 0, fmt.Errorf("%w: %f,%f", ErrGeometry, a.Lat, a.Lon)
	}
	if !ValidCoordinate(b) {
		return 0, fmt.Errorf("%w: %f,%f", ErrGeometry, b.Lat, b.Lon)
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h))), nil
}

// Offset returns the point reached by moving north and east by the given meters.
// It uses a local flat-earth approximation and is meant for short distances.
func Offset(c Coordinate, northMeters, eastMeters float64) Coordinate {
	dLat := northMeters / EarthRadiusMeters * 180 / math.Pi
	dLon := eastMeters / (EarthRadiusMeters * math.Cos(c.Lat*math.Pi/180)) * 180 / math.Pi
	return Coordinate{Lat: c.Lat + dLat, Lon: c.Lon + dLon}
}
