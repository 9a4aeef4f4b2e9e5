// Package api provides the HTTP API for Tramline.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/api/handler"
	"github.com/tramline/tramline/internal/api/middleware"
	"github.com/tramline/tramline/internal/auth"
	"github.com/tramline/tramline/internal/graph"
	"github.com/tramline/tramline/internal/stops"
	"github.com/tramline/tramline/internal/upstream"
	"github.com/tramline/tramline/internal/worker"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool
	RateLimits  middleware.RateLimits

	Planner  handler.Planner
	Catalog  *stops.Service
	Graph    *graph.Service
	Reloader *worker.Reloader
	WarmJob  *worker.WarmJob
	Tokens   *auth.TokenService
	Registry *upstream.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tramline-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	ops := handler.NewOpsHandler(opsConfig(cfg))

	limits := cfg.RateLimits.WithDefaults()
	planRateLimit := middleware.RateLimitByIP(limits.Plan)
	standardRateLimit := middleware.RateLimitByIP(limits.Standard)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", ops.HealthCheck)
			r.Get("/ready", ops.ReadinessCheck)
			r.With(middleware.RequireScope(cfg.Tokens, auth.ScopeStatus)).Get("/status", ops.SystemStatus)
		})

		if cfg.Planner != nil {
			plan := handler.NewPlanHandler(cfg.Planner, cfg.Logger)
			r.With(planRateLimit).Get("/plan", plan.PlanGet)
			r.With(planRateLimit, middleware.RequireJSON, middleware.LimitBody(middleware.DefaultMaxBodyBytes)).
				Post("/plan", plan.PlanPost)
		}

		if cfg.Catalog != nil {
			stopsHandler := handler.NewStopsHandler(cfg.Catalog, cfg.Logger)
			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/stops", stopsHandler.ListStops)
				r.Get("/stops:nearest", stopsHandler.NearestStop)
				r.Get("/stops:nearby", stopsHandler.NearbyStops)
				r.Get("/stops/{stopId}", stopsHandler.GetStop)
			})
		}

		// Admin endpoints (operator tokens)
		if cfg.Reloader != nil && cfg.Graph != nil {
			admin := handler.NewAdminHandler(cfg.Reloader, cfg.Graph, cfg.Logger)
			adminRateLimit := middleware.RateLimitByOperator(limits.Admin)
			r.Route("/admin", func(r chi.Router) {
				r.With(middleware.RequireScope(cfg.Tokens, auth.ScopeCatalogReload), adminRateLimit).
					Post("/catalog:reload", admin.ReloadCatalog)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireScope(cfg.Tokens, auth.ScopeCacheAdmin))
					r.Use(adminRateLimit)
					r.Get("/cache", admin.CacheStatus)
					r.Post("/cache:purge", admin.PurgeCache)
				})
			})
		}
	})

	return r
}

func opsConfig(cfg RouterConfig) handler.OpsConfig {
	ops := handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Jobs:      map[string]handler.JobReporter{},
	}
	if cfg.Catalog != nil {
		ops.Catalog = cfg.Catalog
	}
	if cfg.Graph != nil {
		ops.Cache = cfg.Graph
		ops.Engine = cfg.Graph.EngineName()
	}
	if cfg.Reloader != nil {
		ops.Jobs[worker.JobCatalogReload] = cfg.Reloader
	}
	if cfg.WarmJob != nil {
		ops.Jobs[worker.JobCacheWarm] = cfg.WarmJob
	}
	return ops
}
