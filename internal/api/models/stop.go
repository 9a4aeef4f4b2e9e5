package models

// Stop is a catalog stop. Lat and Lon are omitted for stops without usable coordinates.
type Stop struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

// NearbyStop is a stop with its distance from the query point.
type NearbyStop struct {
	Stop
	DistanceMeters float64 `json:"distanceMeters"`
}

// StopList is a page of catalog stops.
type StopList struct {
	Items []Stop            `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// NearbyStopList lists stops around a coordinate, closest first.
type NearbyStopList struct {
	Items []NearbyStop `json:"items"`
}

// PagedResponseMeta contains pagination metadata.
type PagedResponseMeta struct {
	Limit      int     `json:"limit"`
	Total      int     `json:"total"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// NearbyQuery holds the query parameters of GET /v1/stops:nearby.
type NearbyQuery struct {
	Lat    float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon    float64 `json:"lon" validate:"gte=-180,lte=180"`
	Radius float64 `json:"radius" validate:"gt=0,lte=5000"`
	Limit  int     `json:"limit" validate:"gte=1,lte=100"`
}

// ListQuery holds the query parameters of GET /v1/stops.
type ListQuery struct {
	Limit  int `json:"limit" validate:"gte=1,lte=500"`
	Offset int `json:"offset" validate:"gte=0"`
}
