package stops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/itinerary"
)

// Snapshot is an immutable view of the catalog. It is shared by concurrent
// requests and replaced as a whole on reload.
type Snapshot struct {
	stops    []itinerary.Stop
	byID     map[string]int
	resolver *itinerary.Resolver
	source   string
	loadedAt time.Time
}

func newSnapshot(stops []itinerary.Stop, source string) *Snapshot {
	byID := make(map[string]int, len(stops))
	for i, s := range stops {
		if _, dup := byID[s.ID]; !dup {
			byID[s.ID] = i
		}
	}
	return &Snapshot{
		stops:    stops,
		byID:     byID,
		resolver: itinerary.NewResolver(stops),
		source:   source,
		loadedAt: time.Now(),
	}
}

// Get returns the stop with the given id.
func (s *Snapshot) Get(id string) (itinerary.Stop, bool) {
	i, ok := s.byID[id]
	if !ok {
		return itinerary.Stop{}, false
	}
	return s.stops[i], true
}

// Stops returns the catalog in source order. The slice must not be modified.
func (s *Snapshot) Stops() []itinerary.Stop {
	return s.stops
}

// Resolver returns the nearest-stop resolver over this snapshot.
func (s *Snapshot) Resolver() *itinerary.Resolver {
	return s.resolver
}

// Len returns the number of stops.
func (s *Snapshot) Len() int {
	return len(s.stops)
}

// Source names the repository the snapshot was loaded from.
func (s *Snapshot) Source() string {
	return s.source
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// ServiceConfig holds configuration for the stop catalog service.
type ServiceConfig struct {
	// Repository is the stop source.
	Repository Repository

	// Logger for service operations.
	Logger zerolog.Logger

	// LoadTimeout bounds a single load from the repository (default: 2 minutes).
	LoadTimeout time.Duration
}

// Service serves the stop catalog from memory.
type Service struct {
	repo        Repository
	logger      zerolog.Logger
	loadTimeout time.Duration

	reloadMu sync.Mutex

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewService creates a new stop catalog service. Call Load before use.
func NewService(cfg ServiceConfig) *Service {
	loadTimeout := cfg.LoadTimeout
	if loadTimeout == 0 {
		loadTimeout = 2 * time.Minute
	}

	return &Service{
		repo:        cfg.Repository,
		logger:      cfg.Logger,
		loadTimeout: loadTimeout,
	}
}

// Load reads the catalog from the repository and swaps it in. On failure the
// previous snapshot stays in place.
func (s *Service) Load(ctx context.Context) (*Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	start := time.Now()
	stops, err := s.repo.ListStops(ctx)
	if err != nil {
		s.logger.Error().Err(err).
			Str("source", s.repo.Name()).
			Msg("failed to load stop catalog")
		return nil, fmt.Errorf("loading stops from %s: %w", s.repo.Name(), err)
	}
	if len(stops) == 0 {
		return nil, fmt.Errorf("loading stops from %s: %w", s.repo.Name(), ErrEmptyCatalog)
	}

	snap := newSnapshot(stops, s.repo.Name())

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	s.logger.Info().
		Str("source", s.repo.Name()).
		Int("stops", snap.Len()).
		Dur("duration", time.Since(start)).
		Msg("stop catalog loaded")

	return snap, nil
}

// Snapshot returns the current catalog.
func (s *Service) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, ErrCatalogNotLoaded
	}
	return s.snapshot, nil
}

// Get returns the stop with the given id.
func (s *Service) Get(id string) (itinerary.Stop, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return itinerary.Stop{}, err
	}
	stop, ok := snap.Get(id)
	if !ok {
		return itinerary.Stop{}, ErrStopNotFound
	}
	return stop, nil
}

// Nearest returns the stop closest to the coordinate and its distance in meters.
func (s *Service) Nearest(lat, lon float64) (itinerary.Stop, float64, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return itinerary.Stop{}, 0, err
	}
	stop, dist, ok := snap.Resolver().Resolve(lat, lon)
	if !ok {
		return itinerary.Stop{}, 0, ErrStopNotFound
	}
	return stop, dist, nil
}

// Within returns stops within radiusMeters of the coordinate, closest first.
func (s *Service) Within(lat, lon, radiusMeters float64, limit int) ([]itinerary.StopDistance, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Resolver().Within(lat, lon, radiusMeters, limit), nil
}

// Stats returns catalog statistics.
func (s *Service) Stats() CatalogStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return CatalogStats{Source: s.repo.Name()}
	}
	return CatalogStats{
		Loaded:   true,
		Stops:    s.snapshot.Len(),
		Source:   s.snapshot.source,
		LoadedAt: s.snapshot.loadedAt,
	}
}

// CatalogStats contains catalog statistics.
type CatalogStats struct {
	Loaded   bool
	Stops    int
	Source   string
	LoadedAt time.Time
}
