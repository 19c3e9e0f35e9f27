package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minBootstrapKeyLen = 16

// Config holds all configuration for the InsightGate server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Pipeline   PipelineConfig
	Governance Thresholds
}

type ServerConfig struct {
	Port             int
	Env              string
	RateLimitPerMin  int
	ArtifactCacheTTL time.Duration
	// BootstrapAdminKey, when set, is installed as an admin key for the
	// default tenant at startup so a fresh deployment can mint its own keys.
	BootstrapAdminKey string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// PipelineConfig points at the upstream analysis pipeline that produces run artifacts.
// An empty BaseURL disables pipeline fetches; runs must then be ingested directly.
type PipelineConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:             envInt("INSIGHTGATE_PORT", 8080),
			Env:              envString("INSIGHTGATE_ENV", "development"),
			RateLimitPerMin:  envInt("RATE_LIMIT_PER_MINUTE", 60),
			ArtifactCacheTTL: envDuration("ARTIFACT_CACHE_TTL", 10*time.Minute),

			BootstrapAdminKey: os.Getenv("BOOTSTRAP_ADMIN_KEY"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Pipeline: PipelineConfig{
			BaseURL: strings.TrimRight(os.Getenv("PIPELINE_BASE_URL"), "/"),
			Token:   os.Getenv("PIPELINE_TOKEN"),
			Timeout: envDuration("PIPELINE_TIMEOUT", 30*time.Second),
		},
		Governance: DefaultThresholds(),
	}

	if path := os.Getenv("GOVERNANCE_THRESHOLDS_FILE"); path != "" {
		th, err := LoadThresholdsFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Governance = th
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Pipeline.BaseURL != "" &&
		!strings.HasPrefix(c.Pipeline.BaseURL, "http://") && !strings.HasPrefix(c.Pipeline.BaseURL, "https://") {
		return fmt.Errorf("PIPELINE_BASE_URL must start with http:// or https://, got %q", c.Pipeline.BaseURL)
	}

	if k := c.Server.BootstrapAdminKey; k != "" && len(k) < minBootstrapKeyLen {
		return fmt.Errorf("BOOTSTRAP_ADMIN_KEY must be at least %d characters", minBootstrapKeyLen)
	}

	if c.Server.RateLimitPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Server.RateLimitPerMin)
	}

	if err := c.Governance.Validate(); err != nil {
		return fmt.Errorf("governance thresholds: %w", err)
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
