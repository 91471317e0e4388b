package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the assessment data layer.
type Config struct {
	Env      string
	Control  ControlDBConfig
	Surreal  SurrealConfig
	Redis    RedisConfig
	Backfill BackfillConfig
}

// ControlDBConfig configures the shared control database. Per-tenant
// databases are created on the same server with the same credentials.
type ControlDBConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

type RedisConfig struct {
	URL           string
	AssessmentTTL time.Duration
}

type BackfillConfig struct {
	PageSize int
}

// Load reads configuration from environment variables and returns a
// validated Config. Returns an error with a descriptive message if any
// required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Env: envString("ASSESSLY_ENV", "development"),
		Control: ControlDBConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Surreal: SurrealConfig{
			URL:       os.Getenv("SURREALDB_URL"),
			Namespace: envString("SURREALDB_NS", "assessly"),
			Database:  envString("SURREALDB_DB", "assessly"),
			Username:  os.Getenv("SURREALDB_USER"),
			Password:  os.Getenv("SURREALDB_PASS"),
		},
		Redis: RedisConfig{
			URL:           os.Getenv("REDIS_URL"),
			AssessmentTTL: envDuration("REDIS_ASSESSMENT_TTL", 5*time.Minute),
		},
		Backfill: BackfillConfig{
			PageSize: envInt("BACKFILL_PAGE_SIZE", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Control.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Surreal.URL == "" {
		return fmt.Errorf("SURREALDB_URL is required")
	}
	if !strings.HasPrefix(c.Surreal.URL, "ws://") && !strings.HasPrefix(c.Surreal.URL, "wss://") {
		return fmt.Errorf("SURREALDB_URL must start with ws:// or wss://, got %q", c.Surreal.URL)
	}

	if c.Backfill.PageSize <= 0 {
		return fmt.Errorf("BACKFILL_PAGE_SIZE must be positive, got %d", c.Backfill.PageSize)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
