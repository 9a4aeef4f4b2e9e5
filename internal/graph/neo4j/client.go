// Package neo4j provides a graph engine backed by the Neo4j transactional HTTP
// API and the Graph Data Science Yen's k-shortest-paths procedure.
package neo4j

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/graph"
	"github.com/tramline/tramline/internal/itinerary"
	"github.com/tramline/tramline/internal/upstream"
)

const (
	// UpstreamName identifies this engine in logs and the upstream registry.
	UpstreamName = "neo4j"

	// DefaultDatabase is the database queried when none is configured.
	DefaultDatabase = "neo4j"

	// DefaultProjection is the GDS in-memory graph projection name.
	DefaultProjection = "tramline"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

const pathsQuery = `MATCH (source:Stop {stop_id: $from}), (target:Stop {stop_id: $to})
CALL gds.shortestPath.yen.stream($projection, {
  sourceNode: source,
  targetNode: target,
  k: $k,
  relationshipWeightProperty: 'weight'
})
YIELD index, nodeIds
RETURN index, [n IN gds.util.asNodes(nodeIds) | {stop_id: n.stop_id, name: n.name, lat: n.lat, lon: n.lon}] AS stops
ORDER BY index`

const edgesQuery = `UNWIND $pairs AS pair
MATCH (a:Stop {stop_id: pair.from})-[r:RIDE|WALK]-(b:Stop {stop_id: pair.to})
RETURN pair.from, pair.to, type(r), r.route, r.weight, r.route_type`

const pingQuery = `RETURN 1`

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Neo4j client.
type ClientConfig struct {
	// BaseURL is the Neo4j HTTP endpoint, e.g. http://localhost:7474 (required).
	BaseURL string

	// Database is the database name (optional, defaults to neo4j).
	Database string

	// Username and Password for basic auth (optional).
	Username string
	Password string

	// Projection is the GDS graph projection name (optional, defaults to tramline).
	Projection string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the upstream registry for health tracking (optional).
	Registry *upstream.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a graph.Engine backed by Neo4j.
type Client struct {
	endpoint   string
	username   string
	password   string
	projection string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new Neo4j client.
func NewClient(cfg ClientConfig) *Client {
	database := cfg.Database
	if database == "" {
		database = DefaultDatabase
	}

	projection := cfg.Projection
	if projection == "" {
		projection = DefaultProjection
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := upstream.DefaultClientConfig(UpstreamName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = upstream.NewClient(clientCfg)
	}

	return &Client{
		endpoint:   fmt.Sprintf("%s/db/%s/tx/commit", strings.TrimRight(cfg.BaseURL, "/"), database),
		username:   cfg.Username,
		password:   cfg.Password,
		projection: projection,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the engine name.
func (c *Client) Name() string {
	return UpstreamName
}

// KShortestPaths streams Yen's k shortest paths from the GDS projection.
func (c *Client) KShortestPaths(ctx context.Context, fromID, toID string, k int) ([]itinerary.CandidatePath, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := c.run(ctx, pathsQuery, map[string]any{
		"from":       fromID,
		"to":         toID,
		"k":          k,
		"projection": c.projection,
	})
	if err != nil {
		return nil, err
	}

	paths := make([]itinerary.CandidatePath, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, c.decodeError(fmt.Errorf("path row has %d columns", len(row)))
		}
		var nodes []stopNode
		if err := json.Unmarshal(row[1], &nodes); err != nil {
			return nil, c.decodeError(err)
		}
		path := make(itinerary.CandidatePath, len(nodes))
		for i, n := range nodes {
			path[i] = n.toStop()
		}
		paths = append(paths, path)
	}

	c.logger.Debug().
		Str("from", fromID).
		Str("to", toID).
		Int("k", k).
		Int("paths", len(paths)).
		Msg("received k shortest paths from neo4j")

	return paths, nil
}

// EdgeOptions lists the RIDE and WALK relationships between each requested pair.
func (c *Client) EdgeOptions(ctx context.Context, pairs []graph.StopPair) (map[graph.StopPair][]itinerary.EdgeOption, error) {
	out := make(map[graph.StopPair][]itinerary.EdgeOption, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	params := make([]pairParam, len(pairs))
	for i, p := range pairs {
		params[i] = pairParam{From: p.From, To: p.To}
	}

	rows, err := c.run(ctx, edgesQuery, map[string]any{"pairs": params})
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if len(row) < 6 {
			return nil, c.decodeError(fmt.Errorf("edge row has %d columns", len(row)))
		}
		var (
			from, to, relType string
			route             *string
			weight            *float64
			routeType         *int
		)
		for i, dst := range []any{&from, &to, &relType, &route, &weight, &routeType} {
			if err := json.Unmarshal(row[i], dst); err != nil {
				return nil, c.decodeError(err)
			}
		}

		pair := graph.StopPair{From: from, To: to}
		out[pair] = append(out[pair], toEdgeOption(relType, route, weight, routeType))
	}

	return out, nil
}

// Ping runs a trivial statement to check connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.run(ctx, pingQuery, nil)
	return err
}

// run executes one statement and returns the rows of its result.
func (c *Client) run(ctx context.Context, query string, params map[string]any) ([][]json.RawMessage, error) {
	body, err := json.Marshal(txRequest{Statements: []statement{{Statement: query, Parameters: params}}})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.username != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &graph.Error{
			Engine:  UpstreamName,
			Code:    "REQUEST_FAILED",
			Message: "failed to reach graph engine",
			Err:     graph.ErrEngineUnavailable,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.handleErrorStatus(resp.StatusCode)
	}

	var txResp txResponse
	if err := json.Unmarshal(respBody, &txResp); err != nil {
		return nil, c.decodeError(err)
	}

	if len(txResp.Errors) > 0 {
		return nil, c.handleTxError(txResp.Errors[0])
	}

	if len(txResp.Results) == 0 {
		return nil, nil
	}

	rows := make([][]json.RawMessage, len(txResp.Results[0].Data))
	for i, d := range txResp.Results[0].Data {
		rows[i] = d.Row
	}
	return rows, nil
}

// handleErrorStatus maps HTTP failures to graph errors.
func (c *Client) handleErrorStatus(statusCode int) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &graph.Error{
			Engine:  UpstreamName,
			Code:    "UNAUTHORIZED",
			Message: "graph engine rejected the credentials",
			Err:     graph.ErrEngineUnavailable,
		}
	case statusCode >= 500:
		return &graph.Error{
			Engine:  UpstreamName,
			Code:    fmt.Sprintf("SERVER_%d", statusCode),
			Message: "graph engine is temporarily unavailable",
			Err:     graph.ErrEngineUnavailable,
		}
	default:
		return &graph.Error{
			Engine:  UpstreamName,
			Code:    fmt.Sprintf("HTTP_%d", statusCode),
			Message: fmt.Sprintf("graph engine returned status %d", statusCode),
			Err:     graph.ErrQueryFailed,
		}
	}
}

// handleTxError maps Neo4j status codes, e.g. Neo.ClientError.Statement.SyntaxError.
func (c *Client) handleTxError(e txError) error {
	c.logger.Warn().
		Str("code", e.Code).
		Str("message", e.Message).
		Msg("neo4j statement failed")

	sentinel := graph.ErrQueryFailed
	if strings.HasPrefix(e.Code, "Neo.TransientError") || strings.HasPrefix(e.Code, "Neo.DatabaseError") {
		sentinel = graph.ErrEngineUnavailable
	}
	return &graph.Error{
		Engine:  UpstreamName,
		Code:    e.Code,
		Message: e.Message,
		Err:     sentinel,
	}
}

func (c *Client) decodeError(err error) error {
	return &graph.Error{
		Engine:  UpstreamName,
		Code:    "DECODE",
		Message: "unexpected graph engine response",
		Err:     fmt.Errorf("%w: %w", graph.ErrQueryFailed, err),
	}
}

func (n stopNode) toStop() itinerary.Stop {
	s := itinerary.Stop{ID: n.StopID, Name: n.Name, Lat: math.NaN(), Lon: math.NaN()}
	if n.Lat != nil && n.Lon != nil {
		s.Lat, s.Lon = *n.Lat, *n.Lon
	}
	return s
}

func toEdgeOption(relType string, route *string, weight *float64, routeType *int) itinerary.EdgeOption {
	opt := itinerary.EdgeOption{Kind: itinerary.KindTransit, Weight: -1}
	if relType == "WALK" {
		opt.Kind = itinerary.KindWalk
		opt.Route = "Walk"
	}
	if route != nil && opt.Kind == itinerary.KindTransit {
		opt.Route = *route
	}
	if weight != nil {
		opt.Weight = *weight
	}
	if routeType != nil && opt.Kind == itinerary.KindTransit {
		opt.Mode = modeForRouteType(*routeType)
	}
	return opt
}

func modeForRouteType(t int) itinerary.Mode {
	switch t {
	case routeTypeTram:
		return itinerary.ModeTram
	case routeTypeSubway:
		return itinerary.ModeUBahn
	case routeTypeRail:
		return itinerary.ModeSBahn
	case routeTypeBus:
		return itinerary.ModeBus
	default:
		return ""
	}
}

var _ graph.Engine = (*Client)(nil)
