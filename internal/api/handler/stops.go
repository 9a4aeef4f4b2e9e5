package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/api/models"
	"github.com/tramline/tramline/internal/api/response"
	"github.com/tramline/tramline/internal/itinerary"
	"github.com/tramline/tramline/internal/stops"
)

// Query defaults for the stop endpoints.
const (
	defaultListLimit    = 50
	defaultNearbyLimit  = 10
	defaultNearbyRadius = 500.0
)

// StopCatalog is the stop catalog as seen by the stop handlers.
type StopCatalog interface {
	Snapshot() (*stops.Snapshot, error)
	Get(id string) (itinerary.Stop, error)
	Nearest(lat, lon float64) (itinerary.Stop, float64, error)
	Within(lat, lon, radiusMeters float64, limit int) ([]itinerary.StopDistance, error)
}

// StopsHandler handles stop catalog endpoints.
type StopsHandler struct {
	catalog StopCatalog
	logger  zerolog.Logger
}

// NewStopsHandler creates a new StopsHandler.
func NewStopsHandler(catalog StopCatalog, logger zerolog.Logger) *StopsHandler {
	return &StopsHandler{catalog: catalog, logger: logger}
}

// ListStops handles GET /v1/stops.
func (h *StopsHandler) ListStops(w http.ResponseWriter, r *http.Request) {
	q := models.ListQuery{Limit: defaultListLimit}
	var errs []models.FieldError
	q.Limit = queryInt(r.URL.Query(), "limit", q.Limit, &errs)
	q.Offset = queryInt(r.URL.Query(), "offset", q.Offset, &errs)
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid query", errs)
		return
	}
	if err := validate.Struct(q); err != nil {
		response.BadRequest(w, r, "invalid query", fieldErrors(err))
		return
	}

	snap, err := h.catalog.Snapshot()
	if err != nil {
		h.catalogError(w, r, err)
		return
	}

	all := snap.Stops()
	start := min(q.Offset, len(all))
	end := min(start+q.Limit, len(all))

	items := make([]models.Stop, 0, end-start)
	for _, s := range all[start:end] {
		items = append(items, toStop(s))
	}

	list := models.StopList{
		Items: items,
		Meta:  models.PagedResponseMeta{Limit: q.Limit, Total: len(all)},
	}
	if end < len(all) {
		next := strconv.Itoa(end)
		list.Meta.NextCursor = &next
	}

	response.Cacheable(w, 5*time.Minute)
	response.JSON(w, r, http.StatusOK, list)
}

// GetStop handles GET /v1/stops/{stopId}.
func (h *StopsHandler) GetStop(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopId")

	stop, err := h.catalog.Get(stopID)
	if err != nil {
		if errors.Is(err, stops.ErrStopNotFound) {
			response.NotFound(w, r, "stop "+strconv.Quote(stopID)+" not found")
			return
		}
		h.catalogError(w, r, err)
		return
	}

	response.Cacheable(w, 5*time.Minute)
	response.JSON(w, r, http.StatusOK, toStop(stop))
}

// NearestStop handles GET /v1/stops:nearest?lat=..&lon=..
func (h *StopsHandler) NearestStop(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := h.coordinate(w, r)
	if !ok {
		return
	}

	stop, dist, err := h.catalog.Nearest(lat, lon)
	if err != nil {
		if errors.Is(err, stops.ErrStopNotFound) {
			response.NotFound(w, r, "no stop found near coordinate")
			return
		}
		h.catalogError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.NearbyStop{Stop: toStop(stop), DistanceMeters: dist})
}

// NearbyStops handles GET /v1/stops:nearby?lat=..&lon=..&radius=..&limit=..
func (h *StopsHandler) NearbyStops(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	var errs []models.FieldError
	q := models.NearbyQuery{
		Lat:    queryFloat(values, "lat", 0, true, &errs),
		Lon:    queryFloat(values, "lon", 0, true, &errs),
		Radius: queryFloat(values, "radius", defaultNearbyRadius, false, &errs),
		Limit:  queryInt(values, "limit", defaultNearbyLimit, &errs),
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid query", errs)
		return
	}
	if err := validate.Struct(q); err != nil {
		response.BadRequest(w, r, "invalid query", fieldErrors(err))
		return
	}

	found, err := h.catalog.Within(q.Lat, q.Lon, q.Radius, q.Limit)
	if err != nil {
		h.catalogError(w, r, err)
		return
	}

	items := make([]models.NearbyStop, 0, len(found))
	for _, sd := range found {
		items = append(items, models.NearbyStop{Stop: toStop(sd.Stop), DistanceMeters: sd.DistanceMeters})
	}
	response.JSON(w, r, http.StatusOK, models.NearbyStopList{Items: items})
}

func (h *StopsHandler) coordinate(w http.ResponseWriter, r *http.Request) (float64, float64, bool) {
	values := r.URL.Query()
	var errs []models.FieldError
	q := models.NearbyQuery{
		Lat:    queryFloat(values, "lat", 0, true, &errs),
		Lon:    queryFloat(values, "lon", 0, true, &errs),
		Radius: defaultNearbyRadius,
		Limit:  1,
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid query", errs)
		return 0, 0, false
	}
	if err := validate.Struct(q); err != nil {
		response.BadRequest(w, r, "invalid query", fieldErrors(err))
		return 0, 0, false
	}
	return q.Lat, q.Lon, true
}

func (h *StopsHandler) catalogError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, stops.ErrCatalogNotLoaded) {
		response.ServiceUnavailable(w, r, "stop catalog is not available", "CATALOG_UNLOADED", 30*time.Second)
		return
	}
	h.logger.Error().Err(err).Msg("stop catalog lookup failed")
	response.InternalError(w, r, "stop catalog lookup failed")
}

func queryInt(values url.Values, key string, def int, errs *[]models.FieldError) int {
	raw := values.Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, models.FieldError{Field: key, Message: "must be an integer", Code: "INVALID"})
		return def
	}
	return n
}

func queryFloat(values url.Values, key string, def float64, required bool, errs *[]models.FieldError) float64 {
	raw := values.Get(key)
	if raw == "" {
		if required {
			*errs = append(*errs, models.FieldError{Field: key, Message: "is required", Code: "REQUIRED"})
		}
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, models.FieldError{Field: key, Message: "must be a number", Code: "INVALID"})
		return def
	}
	return f
}
