// Package config loads the service configuration. Values come from the defaults,
// then an optional YAML file, then environment variables, and are validated last.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tramline/tramline/internal/database"
	"github.com/tramline/tramline/internal/itinerary"
)

// PathEnv names the environment variable holding the YAML file path.
const PathEnv = "TRAMLINE_CONFIG"

// Catalog sources.
const (
	CatalogFixture  = "fixture"
	CatalogPostgres = "postgres"
	CatalogGTFS     = "gtfs"
)

// Graph engines.
const (
	EngineMemory = "memory"
	EngineNeo4j  = "neo4j"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`
	Catalog   CatalogConfig    `yaml:"catalog"`
	Database  database.Config  `yaml:"database"`
	Graph     GraphConfig      `yaml:"graph"`
	Itinerary itinerary.Config `yaml:"itinerary"`
	Auth      AuthConfig       `yaml:"auth"`
	Worker    WorkerConfig     `yaml:"worker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gt=0,lte=65535"`
	Environment     string        `yaml:"environment" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	RequireTLS      bool          `yaml:"require_tls"`
	RateLimits      RateLimits    `yaml:"rate_limits"`
}

// RateLimits are request budgets per minute. Zero keeps the built-in budget.
type RateLimits struct {
	PlanPerMinute     int `yaml:"plan_per_minute" validate:"gte=0"`
	StandardPerMinute int `yaml:"standard_per_minute" validate:"gte=0"`
	AdminPerMinute    int `yaml:"admin_per_minute" validate:"gte=0"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// CatalogConfig selects the stop catalog source.
type CatalogConfig struct {
	Source     string `yaml:"source" validate:"oneof=fixture postgres gtfs"`
	GTFSSource string `yaml:"gtfs_source" validate:"required_if=Source gtfs"`
}

// GraphConfig selects and tunes the graph engine.
type GraphConfig struct {
	Engine      string        `yaml:"engine" validate:"oneof=memory neo4j"`
	FixturePath string        `yaml:"fixture_path"`
	K           int           `yaml:"k" validate:"gte=1,lte=20"`
	CacheSize   int           `yaml:"cache_size" validate:"gte=1"`
	CacheTTL    time.Duration `yaml:"cache_ttl" validate:"gt=0"`
	Neo4j       Neo4jConfig   `yaml:"neo4j"`
}

// Neo4jConfig holds the Neo4j HTTP endpoint settings.
type Neo4jConfig struct {
	URL        string        `yaml:"url" validate:"omitempty,url"`
	Database   string        `yaml:"database"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Projection string        `yaml:"projection"`
	Timeout    time.Duration `yaml:"timeout" validate:"gte=0"`
}

// AuthConfig holds the admin token settings.
type AuthConfig struct {
	SigningKey string `yaml:"signing_key"`
	Issuer     string `yaml:"issuer" validate:"required"`
	Audience   string `yaml:"audience" validate:"required"`
}

// WorkerConfig holds the Pub/Sub subscriber settings.
type WorkerConfig struct {
	ProjectID      string `yaml:"project_id"`
	SubscriptionID string `yaml:"subscription_id" validate:"required_with=ProjectID"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			Environment:     "development",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
		},
		Catalog: CatalogConfig{
			Source: CatalogFixture,
		},
		Database: database.DefaultConfig(),
		Graph: GraphConfig{
			Engine:      EngineMemory,
			FixturePath: "data/munich.yaml",
			K:           5,
			CacheSize:   10000,
			CacheTTL:    time.Hour,
		},
		Itinerary: itinerary.DefaultConfig(),
		Auth: AuthConfig{
			Issuer:   "tramline",
			Audience: "tramline-admin",
		},
	}
}

// Load reads the file named by TRAMLINE_CONFIG, if any, and applies the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(PathEnv))
}

// LoadFile loads the configuration from path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decoding config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(validateGraph, GraphConfig{})

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", describe(verrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func validateGraph(sl validator.StructLevel) {
	g := sl.Current().Interface().(GraphConfig)
	switch g.Engine {
	case EngineNeo4j:
		if g.Neo4j.URL == "" {
			sl.ReportError(g.Neo4j.URL, "Neo4j.URL", "URL", "required_for_neo4j", "")
		}
	case EngineMemory:
		if g.FixturePath == "" {
			sl.ReportError(g.FixturePath, "FixturePath", "FixturePath", "required_for_memory", "")
		}
	}
}

func describe(verrs validator.ValidationErrors) string {
	msg := ""
	for i, fe := range verrs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
	}
	return msg
}

// applyEnv overrides values from environment variables that are set.
func applyEnv(cfg *Config) error {
	db, err := cfg.Database.WithEnv()
	if err != nil {
		return err
	}
	cfg.Database = db

	setString(&cfg.Server.Environment, "APP_ENV")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Catalog.Source, "CATALOG_SOURCE")
	setString(&cfg.Catalog.GTFSSource, "GTFS_SOURCE")
	setString(&cfg.Graph.Engine, "GRAPH_ENGINE")
	setString(&cfg.Graph.FixturePath, "GRAPH_FIXTURE")
	setString(&cfg.Graph.Neo4j.URL, "NEO4J_URL")
	setString(&cfg.Graph.Neo4j.Database, "NEO4J_DATABASE")
	setString(&cfg.Graph.Neo4j.Username, "NEO4J_USER")
	setString(&cfg.Graph.Neo4j.Password, "NEO4J_PASSWORD")
	setString(&cfg.Auth.SigningKey, "JWT_SIGNING_KEY")
	setString(&cfg.Worker.ProjectID, "PUBSUB_PROJECT_ID")
	setString(&cfg.Worker.SubscriptionID, "PUBSUB_SUBSCRIPTION")

	ints := []struct {
		dst *int
		key string
	}{
		{&cfg.Server.Port, "APP_PORT"},
		{&cfg.Graph.K, "PLAN_K"},
		{&cfg.Graph.CacheSize, "GRAPH_CACHE_SIZE"},
	}
	for _, e := range ints {
		if err := setInt(e.dst, e.key); err != nil {
			return err
		}
	}

	floats := []struct {
		dst *float64
		key string
	}{
		{&cfg.Telemetry.SampleRatio, "OTEL_TRACES_SAMPLER_ARG"},
		{&cfg.Itinerary.BoardingPenalty, "BOARDING_PENALTY"},
		{&cfg.Itinerary.TransferPenalty, "TRANSFER_PENALTY"},
		{&cfg.Itinerary.WalkingFactor, "WALKING_FACTOR"},
		{&cfg.Itinerary.ShortWalkMeters, "SHORT_WALK_METERS"},
		{&cfg.Itinerary.MinStitchMeters, "MIN_STITCH_METERS"},
	}
	for _, e := range floats {
		if err := setFloat(e.dst, e.key); err != nil {
			return err
		}
	}

	bools := []struct {
		dst *bool
		key string
	}{
		{&cfg.Telemetry.Enabled, "OTEL_ENABLED"},
		{&cfg.Itinerary.ParallelRanking, "PARALLEL_RANKING"},
		{&cfg.Server.RequireTLS, "REQUIRE_TLS"},
	}
	for _, e := range bools {
		if err := setBool(e.dst, e.key); err != nil {
			return err
		}
	}

	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
