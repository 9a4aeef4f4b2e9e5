package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/itinerary"
	"github.com/tramline/tramline/internal/telemetry"
)

// ServiceConfig holds configuration for the graph service.
type ServiceConfig struct {
	// Engine answers path and edge queries.
	Engine Engine

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheSize is the number of stop pairs kept in the edge cache (default: 10000).
	CacheSize int

	// CacheTTL is how long edge options are cached (default: 1 hour).
	CacheTTL time.Duration

	// K is the default number of candidate paths (default: 5).
	K int

	// Metrics records engine calls and cache lookups (optional).
	Metrics *telemetry.UpstreamMetrics
}

// Service fetches candidate paths and their edge options. Edge options of
// stop pairs are cached since the same pairs recur across requests.
type Service struct {
	engine  Engine
	logger  zerolog.Logger
	cache   gcache.Cache
	k       int
	metrics *telemetry.UpstreamMetrics
}

// NewService creates a new graph service.
func NewService(cfg ServiceConfig) *Service {
	size := cfg.CacheSize
	if size <= 0 {
		size = 10000
	}

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = time.Hour
	}

	k := cfg.K
	if k <= 0 {
		k = 5
	}

	return &Service{
		engine:  cfg.Engine,
		logger:  cfg.Logger,
		cache:   gcache.New(size).LRU().Expiration(ttl).Build(),
		k:       k,
		metrics: cfg.Metrics,
	}
}

// EngineName returns the name of the underlying engine.
func (s *Service) EngineName() string {
	return s.engine.Name()
}

// DefaultK returns the configured number of candidates.
func (s *Service) DefaultK() int {
	return s.k
}

// Candidates returns up to k candidates between two stops, each carrying the
// options of every hop. A hop whose pair has no edges gets no options.
// A k of zero or less uses the configured default.
func (s *Service) Candidates(ctx context.Context, fromID, toID string, k int) ([]itinerary.Candidate, error) {
	if k <= 0 {
		k = s.k
	}

	start := time.Now()
	paths, err := s.engine.KShortestPaths(ctx, fromID, toID, k)
	s.metrics.RecordRequest(s.engine.Name(), "k_shortest_paths", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("k shortest paths %s -> %s: %w", fromID, toID, err)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	options, err := s.edgeOptions(ctx, paths)
	if err != nil {
		return nil, err
	}

	candidates := make([]itinerary.Candidate, len(paths))
	for i, path := range paths {
		hops := make([]itinerary.Hop, 0, max(len(path)-1, 0))
		for j := 1; j < len(path); j++ {
			pair := StopPair{From: path[j-1].ID, To: path[j].ID}
			hops = append(hops, itinerary.Hop{
				From:    path[j-1],
				To:      path[j],
				Options: options[pair],
			})
		}
		candidates[i] = itinerary.Candidate{Path: path, Hops: hops}
	}

	s.logger.Debug().
		Str("engine", s.engine.Name()).
		Str("from", fromID).
		Str("to", toID).
		Int("candidates", len(candidates)).
		Msg("fetched candidates")

	return candidates, nil
}

// edgeOptions resolves every pair of the paths, asking the engine only for
// pairs missing from the cache.
func (s *Service) edgeOptions(ctx context.Context, paths []itinerary.CandidatePath) (map[StopPair][]itinerary.EdgeOption, error) {
	out := make(map[StopPair][]itinerary.EdgeOption)
	var misses []StopPair
	seen := make(map[StopPair]bool)

	for _, path := range paths {
		for j := 1; j < len(path); j++ {
			pair := StopPair{From: path[j-1].ID, To: path[j].ID}
			if seen[pair] {
				continue
			}
			seen[pair] = true

			if v, err := s.cache.Get(pair.key()); err == nil {
				out[pair] = v.([]itinerary.EdgeOption)
				continue
			}
			misses = append(misses, pair)
		}
	}

	s.metrics.RecordCache(s.engine.Name(), "edge_options", len(out), len(misses))
	if len(misses) == 0 {
		return out, nil
	}

	start := time.Now()
	fetched, err := s.engine.EdgeOptions(ctx, misses)
	s.metrics.RecordRequest(s.engine.Name(), "edge_options", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("edge options: %w", err)
	}

	for _, pair := range misses {
		opts := fetched[pair]
		out[pair] = opts
		// Pairs without edges are not cached so a fixed graph is seen on the next request.
		if len(opts) > 0 {
			_ = s.cache.Set(pair.key(), opts)
		}
	}

	return out, nil
}

// CacheStats describes the edge cache.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// CacheStats returns the current edge cache counters.
func (s *Service) CacheStats() CacheStats {
	return CacheStats{
		Entries: s.cache.Len(true),
		Hits:    s.cache.HitCount(),
		Misses:  s.cache.MissCount(),
	}
}

// PurgeCache drops every cached edge option.
func (s *Service) PurgeCache() {
	s.cache.Purge()
}
