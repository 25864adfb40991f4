package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hangarhq/hangar/pkg/audit"
	"github.com/hangarhq/hangar/pkg/catalog"
	"github.com/hangarhq/hangar/pkg/db"
)

// Config is the server configuration, loadable from YAML with
// environment overrides on top.
type Config struct {
	Listen        string         `yaml:"listen"`
	PublicBaseURL string         `yaml:"public_base_url"`
	Database      DatabaseConfig `yaml:"database"`
	Storage       StorageConfig  `yaml:"storage"`
	Auth          AuthConfig     `yaml:"auth"`
	Upload        UploadConfig   `yaml:"upload"`
	Cleanup       CleanupConfig  `yaml:"cleanup"`
	Audit         audit.Config   `yaml:"audit"`
	StatsCacheTTL time.Duration  `yaml:"stats_cache_ttl"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// StorageConfig locates the artifact store.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// UploadConfig caps package uploads.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// CleanupConfig tunes the background removal worker.
type CleanupConfig struct {
	Enabled      *bool         `yaml:"enabled"`
	Concurrency  int           `yaml:"concurrency"`
	MaxRetries   int           `yaml:"max_retries"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns a config suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8080",
		PublicBaseURL: "http://localhost:8080",
		Database: DatabaseConfig{
			Type: db.TypeSQLite,
			DSN:  "hangar.db",
		},
		Storage:       StorageConfig{Dir: "./data"},
		Auth:          AuthConfig{TokenTTL: 24 * time.Hour},
		Upload:        UploadConfig{MaxBytes: catalog.DefaultMaxUploadBytes},
		Audit:         audit.DefaultConfig(),
		StatsCacheTTL: 30 * time.Second,
	}
}

// LoadConfig reads YAML from path (optional), then applies environment
// overrides. An empty path yields defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required (or set HANGAR_JWT_SECRET)")
	}
	return cfg, nil
}

// applyEnv layers HANGAR_* environment variables over the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("HANGAR_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("HANGAR_PUBLIC_BASE_URL"); v != "" {
		c.PublicBaseURL = v
	}
	if v := os.Getenv("HANGAR_DB_TYPE"); v != "" {
		c.Database.Type = v
	}
	if v := os.Getenv("HANGAR_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("HANGAR_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("HANGAR_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("HANGAR_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Auth.TokenTTL = d
		}
	}
	if v := os.Getenv("HANGAR_UPLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Upload.MaxBytes = n
		}
	}
	if v := os.Getenv("HANGAR_AUDIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Audit.Enabled = b
		}
	}
	if v := os.Getenv("HANGAR_AUDIT_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Audit.RetentionDays = n
		}
	}
}
