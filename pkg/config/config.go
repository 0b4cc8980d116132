// Package config loads the YAML configuration shared by the waypoint server
// and the headless player.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/waypointgames/waypoint/pkg/audit"
	"github.com/waypointgames/waypoint/pkg/auth"
	"github.com/waypointgames/waypoint/pkg/geo"
)

// CurrentVersion is the only supported apiVersion.
const CurrentVersion = "v1"

// Offline backends.
const (
	OfflineBackendFile   = "file"
	OfflineBackendRedis  = "redis"
	OfflineBackendMemory = "memory"
)

// Config holds the complete configuration.
type Config struct {
	APIVersion string         `yaml:"apiVersion"`
	Server     ServerConfig   `yaml:"server"`
	Database   DatabaseConfig `yaml:"database"`
	Auth       AuthConfig     `yaml:"auth"`
	Sessions   SessionsConfig `yaml:"sessions"`
	Geo        GeoConfig      `yaml:"geo"`
	Offline    OfflineConfig  `yaml:"offline"`
	Client     ClientConfig   `yaml:"client"`
	Notify     NotifyConfig   `yaml:"notify"`
	Audit      audit.Config   `yaml:"audit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	LogLevel        string        `yaml:"log_level"`  // debug, info, warn, error
	LogFormat       string        `yaml:"log_format"` // json, text
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures PostgreSQL. An empty DSN selects the
// in-memory stores.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	Migrate      bool   `yaml:"migrate"`
}

// AuthConfig configures bearer-token and API-key authentication.
type AuthConfig struct {
	Issuer        string        `yaml:"issuer"`
	SigningKey    string        `yaml:"signing_key"`
	RoleClaimPath string        `yaml:"role_claim_path"`
	RolePrefix    string        `yaml:"role_prefix"`
	APIKeys       []auth.APIKey `yaml:"api_keys"`
}

// SessionsConfig configures session history retention.
type SessionsConfig struct {
	// SupersededRetention is how long replaced sessions are kept.
	SupersededRetention time.Duration `yaml:"superseded_retention"`
	CleanupInterval     time.Duration `yaml:"cleanup_interval"`
}

// GeoConfig configures position acquisition on the player.
type GeoConfig struct {
	LocateTimeout time.Duration `yaml:"locate_timeout"`
}

// OfflineConfig configures where pending progress writes are kept.
type OfflineConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis offline backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// ClientConfig configures the player's connection to the server.
type ClientConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// NotifyConfig configures the staff watch stream.
type NotifyConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

// Level returns the slog level for LogLevel, defaulting to info.
func (s ServerConfig) Level() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration from a file.
// The path comes from command line arguments, controlled by the operator.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration, expanding ${VAR} references and
// applying defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.APIVersion != "" && cfg.APIVersion != CurrentVersion {
		return nil, fmt.Errorf("unsupported config apiVersion %q (supported: %s)", cfg.APIVersion, CurrentVersion)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = CurrentVersion
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = "json"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "waypoint"
	}
	if cfg.Sessions.SupersededRetention == 0 {
		cfg.Sessions.SupersededRetention = 30 * 24 * time.Hour
	}
	if cfg.Sessions.CleanupInterval == 0 {
		cfg.Sessions.CleanupInterval = time.Hour
	}
	if cfg.Geo.LocateTimeout == 0 {
		cfg.Geo.LocateTimeout = geo.DefaultLocateTimeout
	}
	if cfg.Offline.Backend == "" {
		cfg.Offline.Backend = OfflineBackendFile
	}
	if cfg.Offline.Path == "" {
		cfg.Offline.Path = "pending.json"
	}
	if cfg.Offline.Redis.Key == "" {
		cfg.Offline.Redis.Key = "waypoint:pending"
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 10 * time.Second
	}
	if cfg.Client.ProbeInterval == 0 {
		cfg.Client.ProbeInterval = 15 * time.Second
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 90
	}
}

// Validate checks the settings the server needs.
func (c *Config) Validate() error {
	var errs []string

	if c.Auth.SigningKey == "" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, "auth.signing_key or auth.api_keys is required")
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Server.LogLevel) {
		errs = append(errs, fmt.Sprintf("server.log_level %q is invalid", c.Server.LogLevel))
	}
	if c.Server.LogFormat != "json" && c.Server.LogFormat != "text" {
		errs = append(errs, fmt.Sprintf("server.log_format %q is invalid", c.Server.LogFormat))
	}
	if c.Database.Migrate && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required when database.migrate is enabled")
	}
	if c.Sessions.SupersededRetention < 0 {
		errs = append(errs, "sessions.superseded_retention must not be negative")
	}
	errs = append(errs, c.Offline.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidatePlayer checks the settings the headless player needs.
func (c *Config) ValidatePlayer() error {
	var errs []string
	if c.Client.BaseURL == "" {
		errs = append(errs, "client.base_url is required")
	}
	errs = append(errs, c.Offline.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (o OfflineConfig) validate() []string {
	switch o.Backend {
	case OfflineBackendFile, OfflineBackendMemory:
		return nil
	case OfflineBackendRedis:
		if o.Redis.Addr == "" {
			return []string{"offline.redis.addr is required for the redis backend"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("offline.backend %q is invalid", o.Backend)}
	}
}
