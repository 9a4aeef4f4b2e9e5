package planner

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tramline/tramline/internal/planner"

// Metrics holds the planner instruments.
type Metrics struct {
	planDuration metric.Float64Histogram
	planTotal    metric.Int64Counter
	candidates   metric.Int64Histogram
	disqualified metric.Int64Counter
	transfers    metric.Int64Histogram
}

// NewMetrics creates the planner instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	planDuration, err := meter.Float64Histogram(
		"planner.plan.duration",
		metric.WithDescription("Duration of itinerary planning in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	planTotal, err := meter.Int64Counter(
		"planner.plan.total",
		metric.WithDescription("Total number of plan requests"),
		metric.WithUnit("{plan}"),
	)
	if err != nil {
		return nil, err
	}

	candidates, err := meter.Int64Histogram(
		"planner.candidates",
		metric.WithDescription("Number of candidate paths evaluated per plan"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, err
	}

	disqualified, err := meter.Int64Counter(
		"planner.candidates.disqualified",
		metric.WithDescription("Candidates dropped because a hop had no edge options"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, err
	}

	transfers, err := meter.Int64Histogram(
		"planner.itinerary.transfers",
		metric.WithDescription("Transfers in the selected itinerary"),
		metric.WithUnit("{transfer}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		planDuration: planDuration,
		planTotal:    planTotal,
		candidates:   candidates,
		disqualified: disqualified,
		transfers:    transfers,
	}, nil
}

func (m *Metrics) recordPlan(ctx context.Context, duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	ctx = context.WithoutCancel(ctx)
	m.planDuration.Record(ctx, duration.Seconds(), attrs)
	m.planTotal.Add(ctx, 1, attrs)
}

func (m *Metrics) recordRanking(ctx context.Context, evaluated, disqualified int) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.candidates.Record(ctx, int64(evaluated))
	if disqualified > 0 {
		m.disqualified.Add(ctx, int64(disqualified))
	}
}

func (m *Metrics) recordTransfers(ctx context.Context, transfers int) {
	if m == nil {
		return
	}
	m.transfers.Record(context.WithoutCancel(ctx), int64(transfers))
}
