package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/api/middleware"
	"github.com/tramline/tramline/internal/api/models"
	"github.com/tramline/tramline/internal/api/response"
	"github.com/tramline/tramline/internal/itinerary"
	"github.com/tramline/tramline/internal/planner"
	"github.com/tramline/tramline/pkg/polyline"
)

// Planner plans itineraries.
type Planner interface {
	Plan(ctx context.Context, req planner.Request) (*planner.Result, error)
}

// PlanHandler handles itinerary planning endpoints.
type PlanHandler struct {
	planner Planner
	logger  zerolog.Logger
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(p Planner, logger zerolog.Logger) *PlanHandler {
	return &PlanHandler{planner: p, logger: logger}
}

// PlanPost handles POST /v1/plan.
func (h *PlanHandler) PlanPost(w http.ResponseWriter, r *http.Request) {
	var input models.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, r, models.NewPayloadTooLarge(middleware.GetRequestID(r.Context()), tooLarge.Limit))
			return
		}
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	h.plan(w, r, input)
}

// PlanGet handles GET /v1/plan?from=...&to=...&k=...
// Each endpoint is a stop id or "lat,lon".
func (h *PlanHandler) PlanGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := models.PlanRequest{
		From: parseEndpoint(q.Get("from")),
		To:   parseEndpoint(q.Get("to")),
	}
	if raw := q.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "invalid query", []models.FieldError{
				{Field: "k", Message: "must be an integer", Code: "INVALID"},
			})
			return
		}
		input.K = k
	}
	h.plan(w, r, input)
}

func (h *PlanHandler) plan(w http.ResponseWriter, r *http.Request, input models.PlanRequest) {
	if err := validate.Struct(input); err != nil {
		response.BadRequest(w, r, "invalid plan request", fieldErrors(err))
		return
	}

	result, err := h.planner.Plan(r.Context(), planner.Request{
		From: planner.Endpoint{StopID: input.From.StopID, Lat: input.From.Lat, Lon: input.From.Lon},
		To:   planner.Endpoint{StopID: input.To.StopID, Lat: input.To.Lat, Lon: input.To.Lon},
		K:    input.K,
	})
	if err != nil {
		h.writePlanError(w, r, err)
		return
	}

	response.Cacheable(w, time.Minute)
	response.JSON(w, r, http.StatusOK, toPlanResponse(result))
}

func (h *PlanHandler) writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := middleware.GetRequestID(r.Context())

	var perr *planner.Error
	if !errors.As(err, &perr) {
		h.logger.Error().Err(err).Str("request_id", traceID).Msg("plan failed")
		response.InternalError(w, r, "failed to plan itinerary")
		return
	}

	switch {
	case errors.Is(err, planner.ErrInvalidInput):
		response.BadRequest(w, r, perr.Message, []models.FieldError{
			{Field: perr.Field, Message: perr.Message, Code: perr.Code},
		})
	case errors.Is(err, planner.ErrNotFound):
		response.NoRoute(w, r, perr.Message, perr.Code)
	case errors.Is(err, planner.ErrUpstreamUnavailable):
		response.ServiceUnavailable(w, r, perr.Message, perr.Code, 30*time.Second)
	default:
		h.logger.Error().Err(err).Str("request_id", traceID).Msg("plan failed")
		response.InternalError(w, r, "failed to plan itinerary")
	}
}

// parseEndpoint reads "lat,lon" as a coordinate and anything else as a stop id.
func parseEndpoint(raw string) models.Endpoint {
	raw = strings.TrimSpace(raw)
	if latRaw, lonRaw, ok := strings.Cut(raw, ","); ok {
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(lonRaw), 64)
		if errLat == nil && errLon == nil {
			return models.Endpoint{Lat: &lat, Lon: &lon}
		}
	}
	return models.Endpoint{StopID: raw}
}

func toPlanResponse(res *planner.Result) models.PlanResponse {
	summary := res.Itinerary.Summary
	legs := make([]models.Leg, 0, len(res.Itinerary.Legs))
	for _, l := range res.Itinerary.Legs {
		legs = append(legs, toLeg(l))
	}

	return models.PlanResponse{
		ID:        res.ID,
		PlannedAt: models.Timestamp(res.PlannedAt),
		Engine:    res.Engine,
		From:      toResolved(res.From),
		To:        toResolved(res.To),
		Legs:      legs,
		Summary: models.PlanSummary{
			Score:                  summary.Score,
			RideTimeSeconds:        summary.RideTime,
			RideMinutes:            summary.RideMinutes,
			Transfers:              summary.Transfers,
			CandidateIndex:         summary.CandidateIndex,
			CandidatesEvaluated:    summary.CandidatesEvaluated,
			CandidatesDisqualified: summary.CandidatesDisqualified,
			ComputeMillis:          res.Duration.Milliseconds(),
		},
	}
}

func toLeg(l itinerary.Leg) models.Leg {
	waypoints := make([]models.Waypoint, 0, len(l.Waypoints))
	coords := make([]polyline.Coordinate, 0, len(l.Waypoints))
	for _, wp := range l.Waypoints {
		lat, lon := coordinateFields(wp.Coordinate())
		waypoints = append(waypoints, models.Waypoint{Lat: lat, Lon: lon, Name: wp.Name, StopID: wp.StopID})
		coords = append(coords, polyline.Coordinate{Lat: wp.Lat, Lon: wp.Lon})
	}

	leg := models.Leg{
		Mode:           string(l.Mode),
		Route:          l.Route,
		Waypoints:      waypoints,
		DistanceMeters: l.DistanceMeters(),
		Polyline:       polyline.Encode(coords),
	}
	if len(waypoints) > 0 {
		leg.From = waypoints[0]
		leg.To = waypoints[len(waypoints)-1]
	}
	if l.IsWalk() {
		leg.Route = ""
	}
	return leg
}

func toResolved(e planner.ResolvedEndpoint) models.ResolvedEndpoint {
	out := models.ResolvedEndpoint{Stop: toStop(e.Stop)}
	if e.Coordinate != nil {
		out.Coordinate = &models.Coordinate{Lat: e.Coordinate.Lat, Lon: e.Coordinate.Lon}
		d := e.DistanceMeters
		out.DistanceMeters = &d
	}
	return out
}

func toStop(s itinerary.Stop) models.Stop {
	lat, lon := coordinateFields(s.Coordinate())
	return models.Stop{ID: s.ID, Name: s.Name, Lat: lat, Lon: lon}
}

// coordinateFields returns nil for both fields when c cannot be rendered.
func coordinateFields(c itinerary.Coordinate) (*float64, *float64) {
	if !itinerary.ValidCoordinate(c) {
		return nil, nil
	}
	return &c.Lat, &c.Lon
}
