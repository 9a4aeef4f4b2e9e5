package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/api/middleware"
	"github.com/tramline/tramline/internal/api/models"
	"github.com/tramline/tramline/internal/api/response"
	"github.com/tramline/tramline/internal/graph"
	"github.com/tramline/tramline/internal/stops"
	"github.com/tramline/tramline/internal/worker"
)

// CatalogReloader reloads the stop catalog.
type CatalogReloader interface {
	Reload(ctx context.Context) (*worker.ReloadResult, error)
}

// EdgeCache is the graph edge option cache.
type EdgeCache interface {
	CacheStats() graph.CacheStats
	PurgeCache()
}

// CatalogStats reports the state of the stop catalog.
type CatalogStats interface {
	Stats() stops.CatalogStats
}

// AdminHandler handles operator endpoints.
type AdminHandler struct {
	reloader CatalogReloader
	cache    EdgeCache
	logger   zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(reloader CatalogReloader, cache EdgeCache, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{reloader: reloader, cache: cache, logger: logger}
}

// ReloadCatalog handles POST /v1/admin/catalog:reload.
func (h *AdminHandler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	operator := middleware.GetOperator(r.Context())

	res, err := h.reloader.Reload(r.Context())
	if err != nil {
		if errors.Is(err, worker.ErrReloadInProgress) {
			response.Conflict(w, r, "a catalog reload is already in progress")
			return
		}
		h.logger.Error().Err(err).Str("operator", operator).Msg("catalog reload failed")
		response.ServiceUnavailable(w, r, "catalog reload failed", "CATALOG_RELOAD_FAILED", 0)
		return
	}

	h.logger.Info().
		Str("operator", operator).
		Str("source", res.Source).
		Int("stops", res.Stops).
		Msg("catalog reload requested")

	response.JSON(w, r, http.StatusOK, models.CatalogReloadResponse{
		Catalog: models.CatalogStatus{
			Loaded:   true,
			Source:   res.Source,
			Stops:    res.Stops,
			LoadedAt: optionalTimestamp(res.LoadedAt),
		},
		CachePurged:   res.CachePurged,
		DurationMilli: res.Duration.Milliseconds(),
	})
}

// CacheStatus handles GET /v1/admin/cache.
func (h *AdminHandler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toCacheStatus(h.cache.CacheStats()))
}

// PurgeCache handles POST /v1/admin/cache:purge.
func (h *AdminHandler) PurgeCache(w http.ResponseWriter, r *http.Request) {
	before := h.cache.CacheStats()
	h.cache.PurgeCache()

	h.logger.Info().
		Str("operator", middleware.GetOperator(r.Context())).
		Int("entries", before.Entries).
		Msg("edge cache purged")

	response.JSON(w, r, http.StatusOK, toCacheStatus(h.cache.CacheStats()))
}

func toCacheStatus(s graph.CacheStats) models.CacheStatus {
	return models.CacheStatus{Entries: s.Entries, Hits: s.Hits, Misses: s.Misses}
}

func toCatalogStatus(s stops.CatalogStats) models.CatalogStatus {
	return models.CatalogStatus{
		Loaded:   s.Loaded,
		Source:   s.Source,
		Stops:    s.Stops,
		LoadedAt: optionalTimestamp(s.LoadedAt),
	}
}

func optionalTimestamp(t time.Time) *models.Timestamp {
	if t.IsZero() {
		return nil
	}
	ts := models.Timestamp(t)
	return &ts
}
