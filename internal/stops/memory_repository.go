package stops

import (
	"context"
	"sync"

	"github.com/tramline/tramline/internal/itinerary"
)

// InMemoryRepository is an in-memory implementation of Repository.
// It backs tests and fixture based runs of the CLI.
type InMemoryRepository struct {
	mu    sync.RWMutex
	stops []itinerary.Stop
}

// NewInMemoryRepository creates a repository holding a copy of stops.
func NewInMemoryRepository(stops []itinerary.Stop) *InMemoryRepository {
	return &InMemoryRepository{stops: append([]itinerary.Stop(nil), stops...)}
}

// ListStops returns a copy of the stored stops.
func (r *InMemoryRepository) ListStops(_ context.Context) ([]itinerary.Stop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]itinerary.Stop(nil), r.stops...), nil
}

// Replace swaps the stored stops.
func (r *InMemoryRepository) Replace(stops []itinerary.Stop) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append([]itinerary.Stop(nil), stops...)
}

// Name returns the source name.
func (r *InMemoryRepository) Name() string {
	return "memory"
}

var _ Repository = (*InMemoryRepository)(nil)
