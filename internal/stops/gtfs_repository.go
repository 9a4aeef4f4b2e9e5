package stops

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jamespfennell/gtfs"
	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/itinerary"
	"github.com/tramline/tramline/internal/upstream"
)

// GTFSUpstreamName identifies the GTFS feed download in the upstream registry.
const GTFSUpstreamName = "gtfs-static"

// Static feeds of large networks run to tens of megabytes.
const feedDownloadTimeout = 2 * time.Minute

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// GTFSConfig holds configuration for the GTFS stop source.
type GTFSConfig struct {
	// Source is a local path or an http(s) URL of a static GTFS zip.
	Source string

	// HTTPClient downloads remote feeds (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Registry is the upstream registry for health tracking (optional).
	Registry *upstream.Registry

	Logger zerolog.Logger
}

// GTFSRepository reads stops from the stops.txt of a static GTFS feed.
type GTFSRepository struct {
	source     string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewGTFSRepository creates a repository over a static GTFS feed.
func NewGTFSRepository(cfg GTFSConfig) *GTFSRepository {
	httpClient := cfg.HTTPClient
	if httpClient == nil && isRemote(cfg.Source) {
		clientCfg := upstream.DefaultClientConfig(GTFSUpstreamName)
		clientCfg.Timeout = feedDownloadTimeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = upstream.NewClient(clientCfg)
	}

	return &GTFSRepository{
		source:     cfg.Source,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// ListStops downloads or reads the feed and returns its stops in feed order.
// Stops without coordinates get NaN coordinates.
func (r *GTFSRepository) ListStops(ctx context.Context) ([]itinerary.Stop, error) {
	raw, err := r.read(ctx)
	if err != nil {
		return nil, err
	}

	static, err := gtfs.ParseStatic(raw, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parsing GTFS data: %w", err)
	}

	stops := make([]itinerary.Stop, 0, len(static.Stops))
	skipped := 0
	for i := range static.Stops {
		s := &static.Stops[i]
		stop := itinerary.Stop{ID: s.Id, Name: s.Name, Lat: math.NaN(), Lon: math.NaN()}
		if s.Latitude != nil && s.Longitude != nil {
			stop.Lat, stop.Lon = *s.Latitude, *s.Longitude
		} else {
			skipped++
		}
		stops = append(stops, stop)
	}

	r.logger.Debug().
		Str("source", r.source).
		Int("stops", len(stops)).
		Int("without_coordinates", skipped).
		Msg("parsed GTFS stops")

	return stops, nil
}

func (r *GTFSRepository) read(ctx context.Context) ([]byte, error) {
	if !isRemote(r.source) {
		b, err := os.ReadFile(r.source)
		if err != nil {
			return nil, fmt.Errorf("reading local GTFS file: %w", err)
		}
		return b, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.source, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading GTFS data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading GTFS data: status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading GTFS data: %w", err)
	}
	return b, nil
}

// Name returns the source name.
func (r *GTFSRepository) Name() string {
	return "gtfs"
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

var _ Repository = (*GTFSRepository)(nil)
