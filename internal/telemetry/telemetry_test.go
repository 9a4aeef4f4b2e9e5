package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := Init(ctx, Config{
		ServiceName:  "tramline-api",
		Environment:  "test",
		OTLPEndpoint: "localhost:4317",
	})
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestSampler(t *testing.T) {
	var high trace.TraceID
	for i := range high {
		high[i] = 0xff
	}
	root := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       high,
		Name:          "planner.Plan",
	}

	assert.Equal(t, sdktrace.RecordAndSample, sampler(0).ShouldSample(root).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, sampler(1).ShouldSample(root).Decision)
	// An all-ones trace id lies above every ratio bound.
	assert.Equal(t, sdktrace.Drop, sampler(0.1).ShouldSample(root).Decision)
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestUpstreamMetrics_Record(t *testing.T) {
	m, err := NewUpstreamMetrics()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.RecordRequest("neo4j", "edge_options", 12*time.Millisecond, nil)
		m.RecordRequest("neo4j", "k_shortest_paths", time.Second, assert.AnError)
		m.RecordCache("neo4j", "edge_options", 3, 2)
	})
}

func TestUpstreamMetrics_NilIsNoop(t *testing.T) {
	var m *UpstreamMetrics

	assert.NotPanics(t, func() {
		m.RecordRequest("neo4j", "edge_options", time.Millisecond, nil)
		m.RecordCache("neo4j", "edge_options", 1, 1)
	})
}
