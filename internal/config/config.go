// Package config holds the engine's runtime configuration, parsed from
// environment variables prefixed FLOW_.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for a plan run.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// ControlPort serves /status, /healthz, /metrics (internal/control).
	ControlPort int `envconfig:"CONTROL_PORT" default:"8080"`

	// StencilPath points at the plan stencil file to parse and run.
	StencilPath string `envconfig:"STENCIL_PATH" default:""`

	// PostgresDSN backs both the WAL durability gate and pgcdc sources.
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	MongoURI    string `envconfig:"MONGO_URI" default:""`
	RedisAddr   string `envconfig:"REDIS_ADDR" default:""`
	WeaviateURL string `envconfig:"WEAVIATE_URL" default:""`
	S3Bucket    string `envconfig:"S3_BUCKET" default:""`

	// StartupTimeoutMs is validated and logged at startup. It is not passed
	// to the scheduler: plan.StartupTimeout is a fixed 3s constant.
	StartupTimeoutMs int `envconfig:"STARTUP_TIMEOUT_MS" default:"3000"`
}

// ResolveDefaults validates the environment and derives settings left
// as "auto" or empty; currently this is a pass-through since the
// engine has no multi-backend auto-selection to perform, but keeps the
// same validate-then-derive shape as the rest of the ambient stack.
func (c *Config) ResolveDefaults() error {
	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		return fmt.Errorf("unsupported ENVIRONMENT: %s", c.Environment)
	}
	if c.StartupTimeoutMs <= 0 {
		return fmt.Errorf("STARTUP_TIMEOUT_MS must be positive, got %d", c.StartupTimeoutMs)
	}
	return nil
}

// New creates a new Config by parsing environment variables prefixed
// FLOW_, e.g. FLOW_STENCIL_PATH, FLOW_CONTROL_PORT.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("FLOW", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("control_port", cfg.ControlPort).
		Str("stencil_path", cfg.StencilPath).
		Str("postgres_dsn_present", presence(cfg.PostgresDSN)).
		Str("mongo_uri_present", presence(cfg.MongoURI)).
		Str("redis_addr_present", presence(cfg.RedisAddr)).
		Str("weaviate_url_present", presence(cfg.WeaviateURL)).
		Int("startup_timeout_ms", cfg.StartupTimeoutMs).
		Msg("configuration loaded")

	return &cfg, nil
}

func presence(s string) string {
	if s != "" {
		return "true"
	}
	return "false"
}

// IsTesting returns true if the environment is set to testing.
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// ControlAddr returns the control-plane HTTP listen address.
func (c *Config) ControlAddr() string {
	return fmt.Sprintf(":%d", c.ControlPort)
}
