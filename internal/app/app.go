// Package app assembles the planning stack from configuration. The API server,
// the worker and the CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/auth"
	"github.com/tramline/tramline/internal/config"
	"github.com/tramline/tramline/internal/database"
	"github.com/tramline/tramline/internal/graph"
	"github.com/tramline/tramline/internal/graph/neo4j"
	"github.com/tramline/tramline/internal/planner"
	"github.com/tramline/tramline/internal/upstream"
	"github.com/tramline/tramline/internal/stops"
	"github.com/tramline/tramline/internal/telemetry"
	"github.com/tramline/tramline/internal/worker"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Registry   *upstream.Registry
	Catalog    *stops.Service
	Engine     graph.Engine
	Graph      *graph.Service
	Planner    *planner.Service
	Reloader   *worker.Reloader
	WarmJob    *worker.WarmJob
	Dispatcher *worker.Dispatcher
	Tokens     *auth.TokenService

	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New wires every component. The catalog is not loaded yet; call Load.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: upstream.NewRegistry(),
		logger:   logger,
	}

	var fixture *graph.Fixture
	if cfg.Catalog.Source == config.CatalogFixture || cfg.Graph.Engine == config.EngineMemory {
		f, err := graph.LoadFixture(cfg.Graph.FixturePath)
		if err != nil {
			return nil, err
		}
		fixture = f
	}

	repo, err := a.repository(ctx, fixture)
	if err != nil {
		return nil, err
	}
	a.Catalog = stops.NewService(stops.ServiceConfig{
		Repository: repo,
		Logger:     logger.With().Str("component", "stops").Logger(),
	})

	engine, err := a.engine(fixture)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = engine

	upstreamMetrics, err := telemetry.NewUpstreamMetrics()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("upstream metrics: %w", err)
	}
	a.Graph = graph.NewService(graph.ServiceConfig{
		Engine:    engine,
		Logger:    logger.With().Str("component", "graph").Logger(),
		CacheSize: cfg.Graph.CacheSize,
		CacheTTL:  cfg.Graph.CacheTTL,
		K:         cfg.Graph.K,
		Metrics:   upstreamMetrics,
	})

	plannerMetrics, err := planner.NewMetrics()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("planner metrics: %w", err)
	}
	a.Planner = planner.NewService(planner.ServiceConfig{
		Catalog:    a.Catalog,
		Candidates: a.Graph,
		Itinerary:  cfg.Itinerary,
		K:          cfg.Graph.K,
		Logger:     logger.With().Str("component", "planner").Logger(),
		Metrics:    plannerMetrics,
	})

	workerLogger := logger.With().Str("component", "worker").Logger()
	a.Reloader = worker.NewReloader(worker.ReloaderConfig{
		Catalog: a.Catalog,
		Cache:   a.Graph,
		Logger:  workerLogger,
	})

	warm := worker.DefaultWarmConfig()
	warm.K = cfg.Graph.K
	a.WarmJob = worker.NewWarmJob(worker.WarmJobConfig{
		Config: warm,
		Source: a.Graph,
		Logger: workerLogger,
	})

	dispatcher := worker.DispatcherConfig{
		Reloader: a.Reloader,
		Warmer:   a.WarmJob,
		Cache:    a.Graph,
		Registry: a.Registry,
		Logger:   workerLogger,
	}
	if pinger, ok := engine.(worker.Pinger); ok {
		dispatcher.Graph = pinger
	}
	a.Dispatcher = worker.NewDispatcher(dispatcher)

	a.Tokens = auth.NewTokenService(auth.TokenConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})
	if !a.Tokens.Enabled() {
		logger.Warn().Msg("JWT_SIGNING_KEY not set - admin endpoints are disabled")
	}

	return a, nil
}

// Load loads the stop catalog.
func (a *App) Load(ctx context.Context) error {
	_, err := a.Catalog.Load(ctx)
	return err
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func (a *App) repository(ctx context.Context, fixture *graph.Fixture) (stops.Repository, error) {
	cfg := a.Config
	switch cfg.Catalog.Source {
	case config.CatalogPostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to catalog database: %w", err)
		}
		a.pool = pool
		a.logger.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
		return stops.NewPostgresRepository(pool), nil
	case config.CatalogGTFS:
		return stops.NewGTFSRepository(stops.GTFSConfig{
			Source:   cfg.Catalog.GTFSSource,
			Registry: a.Registry,
			Logger:   a.logger.With().Str("component", "gtfs").Logger(),
		}), nil
	default:
		return stops.NewInMemoryRepository(fixture.StopList()), nil
	}
}

func (a *App) engine(fixture *graph.Fixture) (graph.Engine, error) {
	cfg := a.Config.Graph
	if cfg.Engine == config.EngineNeo4j {
		return neo4j.NewClient(neo4j.ClientConfig{
			BaseURL:    cfg.Neo4j.URL,
			Database:   cfg.Neo4j.Database,
			Username:   cfg.Neo4j.Username,
			Password:   cfg.Neo4j.Password,
			Projection: cfg.Neo4j.Projection,
			Timeout:    cfg.Neo4j.Timeout,
			Registry:   a.Registry,
			Logger:     a.logger.With().Str("component", "neo4j").Logger(),
		}), nil
	}

	engine, err := graph.NewMemoryEngineFromFixture(fixture)
	if err != nil {
		return nil, fmt.Errorf("building memory engine: %w", err)
	}
	return engine, nil
}
