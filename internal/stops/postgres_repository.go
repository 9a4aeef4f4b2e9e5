package stops

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tramline/tramline/internal/itinerary"
)

// PostgresRepository reads stops from the stops table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL stop repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ListStops returns every stop ordered by id. Rows without coordinates are
// returned with NaN coordinates and are skipped by nearest-stop lookups.
func (r *PostgresRepository) ListStops(ctx context.Context) ([]itinerary.Stop, error) {
	query := `
		SELECT stop_id, COALESCE(stop_name, ''), stop_lat, stop_lon
		FROM stops
		ORDER BY stop_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}

	stops, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (itinerary.Stop, error) {
		var (
			s        itinerary.Stop
			lat, lon *float64
		)
		if err := row.Scan(&s.ID, &s.Name, &lat, &lon); err != nil {
			return s, err
		}
		s.Lat, s.Lon = math.NaN(), math.NaN()
		if lat != nil && lon != nil {
			s.Lat, s.Lon = *lat, *lon
		}
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning stops: %w", err)
	}

	return stops, nil
}

// Name returns the source name.
func (r *PostgresRepository) Name() string {
	return "postgres"
}

var _ Repository = (*PostgresRepository)(nil)
