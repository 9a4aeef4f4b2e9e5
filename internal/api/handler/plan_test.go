package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tramline/tramline/internal/api/models"
	"github.com/tramline/tramline/internal/itinerary"
	"github.com/tramline/tramline/internal/planner"
)

type stubPlanner struct {
	got    planner.Request
	result *planner.Result
	err    error
}

func (s *stubPlanner) Plan(_ context.Context, req planner.Request) (*planner.Result, error) {
	s.got = req
	return s.result, s.err
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw     string
		stopID  string
		lat     float64
		lon     float64
		isCoord bool
	}{
		{raw: "de:09162:6", stopID: "de:09162:6"},
		{raw: "48.1402, 11.5583", lat: 48.1402, lon: 11.5583, isCoord: true},
		{raw: "-33.5,151", lat: -33.5, lon: 151, isCoord: true},
		{raw: "Marienplatz,Nord", stopID: "Marienplatz,Nord"},
		{raw: "", stopID: ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			e := parseEndpoint(tt.raw)
			if !tt.isCoord {
				assert.Equal(t, tt.stopID, e.StopID)
				assert.Nil(t, e.Lat)
				return
			}
			assert.Empty(t, e.StopID)
			require.NotNil(t, e.Lat)
			require.NotNil(t, e.Lon)
			assert.InDelta(t, tt.lat, *e.Lat, 1e-9)
			assert.InDelta(t, tt.lon, *e.Lon, 1e-9)
		})
	}
}

func TestPlanHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "graph unavailable",
			err:        &planner.Error{Code: planner.CodeGraphUnavailable, Message: "graph engine is unavailable", Err: planner.ErrUpstreamUnavailable},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   planner.CodeGraphUnavailable,
		},
		{
			name:       "no nearby stop",
			err:        &planner.Error{Code: planner.CodeNoNearbyStop, Field: "from", Message: "no stop found near coordinate", Err: planner.ErrNotFound},
			wantStatus: http.StatusNotFound,
			wantCode:   planner.CodeNoNearbyStop,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPlanHandler(&stubPlanner{err: tt.err}, zerolog.Nop())
			req := httptest.NewRequest(http.MethodGet, "/v1/plan?from=A&to=B", http.NoBody)
			w := httptest.NewRecorder()

			h.PlanGet(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}

func TestPlanHandler_MapsRequest(t *testing.T) {
	stub := &stubPlanner{err: errors.New("stop here")}
	h := NewPlanHandler(stub, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/v1/plan?from=48.14,11.56&to=de:09162:2&k=4", http.NoBody)
	h.PlanGet(httptest.NewRecorder(), req)

	assert.Equal(t, "de:09162:2", stub.got.To.StopID)
	require.True(t, stub.got.From.HasCoordinate())
	assert.InDelta(t, 48.14, *stub.got.From.Lat, 1e-9)
	assert.Equal(t, 4, stub.got.K)
}

func TestPlanPost_BodyTooLarge(t *testing.T) {
	h := NewPlanHandler(&stubPlanner{}, zerolog.Nop())
	body := `{"from":{"stopId":"de:09162:6"},"to":{"stopId":"de:09162:2"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/plan", strings.NewReader(body))
	w := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(w, req.Body, 16)

	h.PlanPost(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "request body exceeds 16 bytes")
}

func TestToLeg_WalkHasNoRoute(t *testing.T) {
	leg := toLeg(itinerary.Leg{
		Mode:  itinerary.ModeWalk,
		Route: "Walk",
		Waypoints: []itinerary.Waypoint{
			{Lat: 48.140228, Lon: 11.558335, Name: "Start"},
			{Lat: 48.139387, Lon: 11.565775, Name: "Karlsplatz", StopID: "de:09162:1"},
		},
	})

	assert.Equal(t, "Walk", leg.Mode)
	assert.Empty(t, leg.Route)
	assert.Equal(t, "Start", leg.From.Name)
	assert.Equal(t, "de:09162:1", leg.To.StopID)
	assert.NotEmpty(t, leg.Polyline)
	assert.InDelta(t, 560, leg.DistanceMeters, 20)
}

func TestFieldErrors_NonValidationError(t *testing.T) {
	errs := fieldErrors(errors.New("bad"))
	require.Len(t, errs, 1)
	assert.Equal(t, models.FieldError{Field: "body", Message: "bad", Code: "INVALID"}, errs[0])
}
