package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/stops"
)

// ErrReloadInProgress is returned when a reload is requested while one is running.
var ErrReloadInProgress = errors.New("catalog reload already in progress")

// CatalogLoader loads a new catalog snapshot.
type CatalogLoader interface {
	Load(ctx context.Context) (*stops.Snapshot, error)
}

// CachePurger drops cached edge options.
type CachePurger interface {
	PurgeCache()
}

// ReloaderConfig holds configuration for the Reloader.
type ReloaderConfig struct {
	Catalog CatalogLoader
	// Cache is purged after a successful load (optional).
	Cache   CachePurger
	Logger  zerolog.Logger
	Metrics *JobMetrics
}

// Reloader reloads the stop catalog and invalidates the edge cache.
type Reloader struct {
	catalog CatalogLoader
	cache   CachePurger
	logger  zerolog.Logger
	metrics *JobMetrics

	running sync.Mutex
}

// NewReloader creates a new Reloader.
func NewReloader(cfg ReloaderConfig) *Reloader {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &JobMetrics{}
	}
	return &Reloader{
		catalog: cfg.Catalog,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
		metrics: metrics,
	}
}

// ReloadResult describes a completed reload.
type ReloadResult struct {
	Source      string
	Stops       int
	LoadedAt    time.Time
	CachePurged bool
	Duration    time.Duration
}

// Reload loads the catalog and purges the edge cache. Concurrent calls fail
// fast with ErrReloadInProgress instead of queueing.
func (r *Reloader) Reload(ctx context.Context) (*ReloadResult, error) {
	if !r.running.TryLock() {
		return nil, ErrReloadInProgress
	}
	defer r.running.Unlock()

	start := time.Now()
	snap, err := r.catalog.Load(ctx)
	if err != nil {
		r.metrics.record(time.Since(start), false)
		return nil, err
	}

	// Stop ids may have changed, so cached edge options are stale.
	purged := false
	if r.cache != nil {
		r.cache.PurgeCache()
		purged = true
	}

	result := &ReloadResult{
		Source:      snap.Source(),
		Stops:       snap.Len(),
		LoadedAt:    snap.LoadedAt(),
		CachePurged: purged,
		Duration:    time.Since(start),
	}
	r.metrics.record(result.Duration, true)

	r.logger.Info().
		Str("source", result.Source).
		Int("stops", result.Stops).
		Bool("cache_purged", purged).
		Dur("duration", result.Duration).
		Msg("catalog reloaded")

	return result, nil
}

// Metrics returns a copy of the reload metrics.
func (r *Reloader) Metrics() JobStats {
	return r.metrics.Stats()
}
