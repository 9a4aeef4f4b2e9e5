package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tramline/tramline/internal/graph"
	"github.com/tramline/tramline/internal/itinerary"
	"github.com/tramline/tramline/internal/stops"
)

// ServiceConfig holds configuration for the planner.
type ServiceConfig struct {
	// Catalog resolves stop ids and coordinates.
	Catalog Catalog

	// Candidates supplies candidate paths from the graph.
	Candidates CandidateSource

	// Itinerary is the cost model and geometry thresholds.
	Itinerary itinerary.Config

	// K is the number of candidates requested per plan (default: 5).
	K int

	// Logger for planner operations.
	Logger zerolog.Logger

	// Metrics records plan outcomes (optional).
	Metrics *Metrics

	// Tracer for plan spans (optional, defaults to the global tracer).
	Tracer trace.Tracer
}

// Service plans itineraries.
type Service struct {
	catalog     Catalog
	source      CandidateSource
	synthesizer *itinerary.Synthesizer
	k           int
	logger      zerolog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

// NewService creates a new planner service.
func NewService(cfg ServiceConfig) *Service {
	k := cfg.K
	if k <= 0 {
		k = 5
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	return &Service{
		catalog:     cfg.Catalog,
		source:      cfg.Candidates,
		synthesizer: itinerary.NewSynthesizer(cfg.Itinerary),
		k:           k,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tracer:      tracer,
	}
}

// Plan resolves both endpoints, fetches candidates and returns the best itinerary.
func (s *Service) Plan(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "planner.Plan")
	defer span.End()

	result, err := s.plan(ctx, req)
	elapsed := time.Since(start)
	s.metrics.recordPlan(ctx, elapsed, outcome(err))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Info().
			Err(err).
			Str("from", describe(req.From)).
			Str("to", describe(req.To)).
			Dur("duration", elapsed).
			Msg("plan failed")
		return nil, err
	}

	result.Duration = elapsed
	span.SetAttributes(
		attribute.String("itinerary.id", result.ID),
		attribute.Int("itinerary.legs", len(result.Itinerary.Legs)),
		attribute.Int("itinerary.transfers", result.Itinerary.Summary.Transfers),
		attribute.Float64("itinerary.score", result.Itinerary.Summary.Score),
	)
	s.logger.Debug().
		Str("itinerary_id", result.ID).
		Str("from_stop", result.From.Stop.ID).
		Str("to_stop", result.To.Stop.ID).
		Int("legs", len(result.Itinerary.Legs)).
		Float64("score", result.Itinerary.Summary.Score).
		Dur("duration", elapsed).
		Msg("plan completed")

	return result, nil
}

func (s *Service) plan(ctx context.Context, req Request) (*Result, error) {
	if err := validateEndpoint("from", req.From); err != nil {
		return nil, err
	}
	if err := validateEndpoint("to", req.To); err != nil {
		return nil, err
	}

	snapshot, err := s.catalog.Snapshot()
	if err != nil {
		return nil, &Error{
			Code:    CodeCatalogUnloaded,
			Message: "stop catalog is not available",
			Err:     fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err),
		}
	}

	from, err := s.resolve(ctx, snapshot, "from", req.From)
	if err != nil {
		return nil, err
	}
	to, err := s.resolve(ctx, snapshot, "to", req.To)
	if err != nil {
		return nil, err
	}

	k := req.K
	if k <= 0 {
		k = s.k
	}

	candidates, err := s.candidates(ctx, from.Stop, to.Stop, k)
	if err != nil {
		return nil, err
	}

	itn, err := s.synthesize(ctx, candidates, from, to)
	if err != nil {
		return nil, err
	}

	return &Result{
		ID:        "itn_" + uuid.NewString(),
		Itinerary: itn,
		From:      from,
		To:        to,
		Engine:    s.source.EngineName(),
		PlannedAt: time.Now().UTC(),
	}, nil
}

// resolve maps an endpoint to a catalog stop. A stop id takes precedence over a coordinate.
func (s *Service) resolve(ctx context.Context, snapshot *stops.Snapshot, field string, e Endpoint) (ResolvedEndpoint, error) {
	_, span := s.tracer.Start(ctx, "planner.resolve", trace.WithAttributes(attribute.String("endpoint", field)))
	defer span.End()

	if e.StopID != "" {
		stop, ok := snapshot.Get(e.StopID)
		if !ok {
			return ResolvedEndpoint{}, &Error{
				Code:    CodeUnknownStop,
				Field:   field,
				Message: fmt.Sprintf("unknown stop %q", e.StopID),
				Err:     ErrInvalidInput,
			}
		}
		span.SetAttributes(attribute.String("stop.id", stop.ID))
		return ResolvedEndpoint{Stop: stop}, nil
	}

	c := itinerary.Coordinate{Lat: *e.Lat, Lon: *e.Lon}
	stop, dist, ok := snapshot.Resolver().Resolve(c.Lat, c.Lon)
	if !ok {
		return ResolvedEndpoint{}, &Error{
			Code:    CodeNoNearbyStop,
			Field:   field,
			Message: "no stop found near coordinate",
			Err:     ErrNotFound,
		}
	}

	span.SetAttributes(
		attribute.String("stop.id", stop.ID),
		attribute.Float64("stop.distance_m", dist),
	)
	return ResolvedEndpoint{Stop: stop, Coordinate: &c, DistanceMeters: dist}, nil
}

func (s *Service) candidates(ctx context.Context, from, to itinerary.Stop, k int) ([]itinerary.Candidate, error) {
	ctx, span := s.tracer.Start(ctx, "planner.candidates", trace.WithAttributes(
		attribute.String("graph.engine", s.source.EngineName()),
		attribute.Int("graph.k", k),
	))
	defer span.End()

	// Same stop on both ends needs no graph query.
	if from.ID == to.ID {
		return []itinerary.Candidate{{Path: itinerary.CandidatePath{from}}}, nil
	}

	candidates, err := s.source.Candidates(ctx, from.ID, to.ID, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, graph.ErrStopUnknown) {
			return nil, &Error{
				Code:    CodeNoRoute,
				Message: "no route found",
				Err:     fmt.Errorf("%w: %w", ErrNotFound, err),
			}
		}
		return nil, &Error{
			Code:    CodeGraphUnavailable,
			Message: "graph engine is unavailable",
			Err:     fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err),
		}
	}

	span.SetAttributes(attribute.Int("graph.candidates", len(candidates)))
	if len(candidates) == 0 {
		return nil, &Error{
			Code:    CodeNoRoute,
			Message: "no route found",
			Err:     ErrNotFound,
		}
	}
	return candidates, nil
}

func (s *Service) synthesize(ctx context.Context, candidates []itinerary.Candidate, from, to ResolvedEndpoint) (itinerary.Itinerary, error) {
	ctx, span := s.tracer.Start(ctx, "planner.synthesize")
	defer span.End()

	itn, stats, err := s.synthesizer.Synthesize(candidates, endpoint(from), endpoint(to))
	s.metrics.recordRanking(ctx, stats.Evaluated, len(stats.Disqualified))

	for _, d := range stats.Disqualified {
		s.logger.Warn().
			Err(d.Err).
			Int("candidate", d.Index).
			Msg("candidate disqualified")
	}

	span.SetAttributes(
		attribute.Int("candidates.evaluated", stats.Evaluated),
		attribute.Int("candidates.disqualified", len(stats.Disqualified)),
	)

	if err != nil {
		span.RecordError(err)
		return itinerary.Itinerary{}, &Error{
			Code:    CodeNoRoute,
			Message: "no route found",
			Err:     fmt.Errorf("%w: %w", ErrNotFound, err),
		}
	}

	s.metrics.recordTransfers(ctx, itn.Summary.Transfers)
	return itn, nil
}

func endpoint(r ResolvedEndpoint) *itinerary.Endpoint {
	if r.Coordinate == nil {
		return nil
	}
	return &itinerary.Endpoint{Coordinate: *r.Coordinate, Stop: r.Stop}
}

func validateEndpoint(field string, e Endpoint) error {
	if e.StopID != "" {
		return nil
	}
	if e.Lat == nil && e.Lon == nil {
		return &Error{
			Code:    CodeMissingEndpoint,
			Field:   field,
			Message: field + " requires a stop id or a coordinate",
			Err:     ErrInvalidInput,
		}
	}
	if !e.HasCoordinate() || !itinerary.ValidCoordinate(itinerary.Coordinate{Lat: *e.Lat, Lon: *e.Lon}) {
		return &Error{
			Code:    CodeInvalidCoordinate,
			Field:   field,
			Message: field + " coordinate is incomplete or out of range",
			Err:     ErrInvalidInput,
		}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "error"
	}
}

func describe(e Endpoint) string {
	if e.StopID != "" {
		return e.StopID
	}
	if e.HasCoordinate() {
		return fmt.Sprintf("%.5f,%.5f", *e.Lat, *e.Lon)
	}
	return ""
}
