package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for sensorbridge-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values.
// Secrets (PGPASSWORD) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8181"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Harvest configuration
	Harvest HarvestConfig `yaml:"harvest"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"sensorbridge"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"sensorbridge_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// HarvestConfig holds settings for the periodic harvest job.
type HarvestConfig struct {
	// SourcesFile is the path to the YAML file listing remote services
	// to harvest.
	SourcesFile string `yaml:"sources_file" env:"HARVEST_SOURCES_FILE" env-default:"sources.yaml"`

	// IntervalMinutes is the pause between full harvest passes.
	IntervalMinutes int `yaml:"interval_minutes" env:"HARVEST_INTERVAL_MINUTES" env-default:"60"`

	// ConnectionTimeoutSeconds bounds every remote protocol request.
	// A request exceeding it fails outright; retrying is the
	// scheduler's business, not the connector's.
	ConnectionTimeoutSeconds int `yaml:"connection_timeout_seconds" env:"HARVEST_CONNECTION_TIMEOUT_SECONDS" env-default:"30"`
}

// Interval returns the harvest interval as a duration.
func (c *HarvestConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// ConnectionTimeout returns the remote request timeout as a duration.
func (c *HarvestConfig) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on
// the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	return cfg, nil
}
