// Package stops provides the stop catalog used to validate stop ids and to
// resolve arbitrary coordinates to their nearest stop.
package stops

import (
	"context"
	"errors"

	"github.com/tramline/tramline/internal/itinerary"
)

// Sentinel errors for the stop catalog.
var (
	// ErrStopNotFound indicates the stop id is not in the catalog.
	ErrStopNotFound = errors.New("stop not found")
	// ErrCatalogNotLoaded indicates the catalog has not been loaded yet.
	ErrCatalogNotLoaded = errors.New("stop catalog not loaded")
	// ErrEmptyCatalog indicates the source returned no stops.
	ErrEmptyCatalog = errors.New("stop catalog is empty")
)

// Repository is a source of stops.
type Repository interface {
	// ListStops returns every stop of the source in a stable order.
	ListStops(ctx context.Context) ([]itinerary.Stop, error)

	// Name identifies the source for logging.
	Name() string
}
