// Package database provides PostgreSQL connection management for the stop catalog.
package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds database connection configuration.
type Config struct {
	Host            string        `yaml:"host" validate:"required"`
	Port            int           `yaml:"port" validate:"gt=0,lte=65535"`
	User            string        `yaml:"user" validate:"required"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database" validate:"required"`
	SSLMode         string        `yaml:"ssl_mode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultConfig returns the settings of a local development database.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "tramline",
		Password:        "localdev",
		Database:        "tramline",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// ConfigFromEnv creates a Config from environment variables over the defaults.
func ConfigFromEnv() (Config, error) {
	return DefaultConfig().WithEnv()
}

// WithEnv returns a copy of c with the DB_* environment variables applied.
// Unset variables keep the current value.
func (c Config) WithEnv() (Config, error) {
	c.Host = getEnvOrDefault("DB_HOST", c.Host)
	c.User = getEnvOrDefault("DB_USER", c.User)
	c.Password = getEnvOrDefault("DB_PASSWORD", c.Password)
	c.Database = getEnvOrDefault("DB_NAME", c.Database)
	c.SSLMode = getEnvOrDefault("DB_SSL_MODE", c.SSLMode)

	var err error
	if c.Port, err = envInt("DB_PORT", c.Port); err != nil {
		return c, err
	}
	if c.MaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", c.MaxOpenConns); err != nil {
		return c, err
	}
	if c.MaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", c.MaxIdleConns); err != nil {
		return c, err
	}
	if v := os.Getenv("DB_CONN_MAX_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("DB_CONN_MAX_LIFETIME: %w", err)
		}
		c.ConnMaxLifetime = d
	}
	return c, nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c Config) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Connect creates a new database connection pool.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns) //nolint:gosec // MaxOpenConns is bounded by config validation
	poolConfig.MinConns = int32(cfg.MaxIdleConns) //nolint:gosec // MaxIdleConns is bounded by config validation
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, current int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return current, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return current, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
