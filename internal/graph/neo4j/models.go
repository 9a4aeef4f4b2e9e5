package neo4j

import "encoding/json"

// txRequest is the body of a transactional HTTP endpoint call.
type txRequest struct {
	Statements []statement `json:"statements"`
}

type statement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// txResponse is the reply of the transactional endpoint. Errors are reported
// in the body with status 200.
type txResponse struct {
	Results []txResult `json:"results"`
	Errors  []txError  `json:"errors"`
}

type txResult struct {
	Columns []string `json:"columns"`
	Data    []txRow  `json:"data"`
}

type txRow struct {
	Row []json.RawMessage `json:"row"`
}

type txError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// stopNode is a projected Stop node.
type stopNode struct {
	StopID string   `json:"stop_id"`
	Name   string   `json:"name"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
}

// pairParam is one entry of the $pairs parameter.
type pairParam struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GTFS route_type values stored on RIDE relationships.
const (
	routeTypeTram   = 0
	routeTypeSubway = 1
	routeTypeRail   = 2
	routeTypeBus    = 3
)
