// Package config loads the worker's YAML configuration file, the
// config_path positional argument named in spec.md §6. Replaces the
// teacher's caarlos0/env loader (internal/config/config.go,
// github.com/caarlos0/env/v11): the CLI contract here is a config *file*
// argument, not environment variables, so gopkg.in/yaml.v3 does the
// unmarshalling and Load/Validate keep the teacher's two-step shape.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig is the database.* block: a pgxpool DSN plus pool sizing,
// mirroring the teacher's DB_MAX_CONNS/DB_MIN_CONNS/DB_MAX_CONN_LIFE knobs.
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int32         `yaml:"max_conns"`
	MinConns    int32         `yaml:"min_conns"`
	MaxConnLife time.Duration `yaml:"max_conn_life"`
}

// DocumentServiceConfig is the DOCUMENT_SERVICE.* block (spec.md §6),
// consulted only when WithDocumentService is set.
type DocumentServiceConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DeadlineTime is deadline.deadline_time: the daily wall-clock hour/minute/
// second past which no main round may be scheduled (spec.md §4.1).
type DeadlineTime struct {
	Hour   int `yaml:"hour"`
	Minute int `yaml:"minute"`
	Second int `yaml:"second"`
}

// DeadlineConfig is the deadline.* block.
type DeadlineConfig struct {
	Enabled      bool         `yaml:"enabled"`
	DeadlineTime DeadlineTime `yaml:"deadline_time"`
}

// DatasourceConfig is the datasource.* block consumed by
// internal/datasource.Factory.Build; Type selects the registered variant
// (external_api, file, test) and the remaining fields are variant-specific.
type DatasourceConfig struct {
	Type      string `yaml:"type"`
	Path      string `yaml:"path"`
	AuctionID string `yaml:"auction_id"`
}

// LoggingConfig configures the log/slog JSON handler (cmd/worker/main.go).
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the root of the YAML document the CLI's config_path argument
// points at (spec.md §6).
type Config struct {
	ResourceAPIServer  string `yaml:"resource_api_server"`
	ResourceAPIVersion string `yaml:"resource_api_version"`
	ResourceAPIToken   string `yaml:"resource_api_token"`
	AuctionsURL        string `yaml:"AUCTIONS_URL"`
	HashSecret         string `yaml:"HASH_SECRET"`

	WithDocumentService bool                  `yaml:"with_document_service"`
	DocumentService     DocumentServiceConfig `yaml:"DOCUMENT_SERVICE"`

	Database   DatabaseConfig    `yaml:"database"`
	Datasource DatasourceConfig  `yaml:"datasource"`
	Deadline   DeadlineConfig    `yaml:"deadline"`
	Logging    LoggingConfig     `yaml:"logging"`

	SandboxMode bool `yaml:"sandbox_mode"`

	// SentryDSN/OTLPEndpoint are ambient observability knobs carried
	// regardless of spec.md's Non-goals (SPEC_FULL.md AMBIENT STACK):
	// the Sentry client is initialised and tracing exported even though the spec's HTTP
	// auth/session layer and multi-auction replication are out of scope.
	SentryDSN    string `yaml:"sentry_dsn"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(body, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 25
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 5
	}
	if cfg.Database.MaxConnLife == 0 {
		cfg.Database.MaxConnLife = time.Hour
	}
	return cfg, nil
}

// Validate enforces the required keys spec.md §7 names as fatal at startup
// (ConfigError: "missing file, missing required key").
func (c *Config) Validate() error {
	if c.Datasource.Type == "" {
		return fmt.Errorf("config: datasource.type is required")
	}
	if c.Datasource.Type == "external_api" {
		if c.ResourceAPIServer == "" {
			return fmt.Errorf("config: resource_api_server is required for datasource.type=external_api")
		}
		if c.ResourceAPIVersion == "" {
			return fmt.Errorf("config: resource_api_version is required for datasource.type=external_api")
		}
		if c.HashSecret == "" {
			return fmt.Errorf("config: HASH_SECRET is required for datasource.type=external_api")
		}
	}
	if c.WithDocumentService && c.DocumentService.URL == "" {
		return fmt.Errorf("config: DOCUMENT_SERVICE.url is required when with_document_service is true")
	}
	return nil
}
