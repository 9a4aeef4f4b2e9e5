// Package main provides the entrypoint for the Tramline API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/api"
	"github.com/tramline/tramline/internal/api/middleware"
	"github.com/tramline/tramline/internal/app"
	"github.com/tramline/tramline/internal/config"
	"github.com/tramline/tramline/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "tramline-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Tramline API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Logger:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if tp.Enabled() {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	stack, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to assemble planner")
		os.Exit(1)
	}
	defer stack.Close()

	// A failed initial load leaves the service unready; an operator can reload later.
	if err := stack.Load(ctx); err != nil {
		log.Error().Err(err).Msg("initial catalog load failed")
	}

	log.Info().
		Str("catalog", cfg.Catalog.Source).
		Str("engine", stack.Graph.EngineName()).
		Int("k", cfg.Graph.K).
		Msg("planner initialized")

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		RequireTLS:  cfg.Server.RequireTLS,
		RateLimits:  rateLimits(cfg.Server.RateLimits),
		Planner:     stack.Planner,
		Catalog:     stack.Catalog,
		Graph:       stack.Graph,
		Reloader:    stack.Reloader,
		WarmJob:     stack.WarmJob,
		Tokens:      stack.Tokens,
		Registry:    stack.Registry,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Warm the edge cache in the background.
	warmCtx, cancelWarm := context.WithCancel(ctx)
	defer cancelWarm()
	go func() {
		result := stack.WarmJob.Run(warmCtx)
		log.Info().
			Int("successful", result.Successful).
			Int("failed", result.Failed).
			Dur("duration", result.Duration).
			Msg("edge cache warmed")
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancelWarm()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

func rateLimits(c config.RateLimits) middleware.RateLimits {
	perMinute := func(n int) middleware.RateLimit {
		return middleware.RateLimit{Requests: n, Window: time.Minute}
	}
	return middleware.RateLimits{
		Plan:     perMinute(c.PlanPerMinute),
		Standard: perMinute(c.StandardPerMinute),
		Admin:    perMinute(c.AdminPerMinute),
	}
}
