package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when no config file is named.
const DefaultPath = "config.yaml"

// EnvPrefix marks environment overrides; "__" separates nested keys, as in
// VLA_UPSTREAM__BASE_URL.
const EnvPrefix = "VLA_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Journal   JournalConfig   `koanf:"journal"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int    `koanf:"port"`
	RequestTimeout string `koanf:"request_timeout"` // Duration string like "30s"
}

type UpstreamConfig struct {
	BaseURL   string `koanf:"base_url"`
	Timeout   string `koanf:"timeout"` // "0" disables the limit
	APIKey    string `koanf:"api_key"`
	ChunkSize int    `koanf:"chunk_size"`
}

type JournalConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":            8080,
	"server.request_timeout": "30s",
	"upstream.base_url":      "http://localhost:8000",
	"upstream.timeout":       "0",
	"journal.type":           "memory",
	"journal.sqlite.path":    "loader.db",
	"log.level":              "info",
	"telemetry.service_name": "vector-loader",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), overlays VLA_ environment
// variables and fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Upstream.APIKey = substituteEnvVars(cfg.Upstream.APIKey)
	cfg.Upstream.BaseURL = substituteEnvVars(cfg.Upstream.BaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := parseDuration(c.Server.RequestTimeout); err != nil {
		return fmt.Errorf("server.request_timeout: %w", err)
	}
	if _, err := parseDuration(c.Upstream.Timeout); err != nil {
		return fmt.Errorf("upstream.timeout: %w", err)
	}
	switch c.Journal.Type {
	case "memory":
	case "sqlite":
		if c.Journal.SQLite.Path == "" {
			return fmt.Errorf("journal.sqlite.path is required for the sqlite journal")
		}
	default:
		return fmt.Errorf("journal.type %q must be memory or sqlite", c.Journal.Type)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// RequestTimeoutDuration returns the parsed request timeout.
func (s ServerConfig) RequestTimeoutDuration() time.Duration {
	d, _ := parseDuration(s.RequestTimeout)
	return d
}

// TimeoutDuration returns the parsed upstream timeout; zero means none.
func (u UpstreamConfig) TimeoutDuration() time.Duration {
	d, _ := parseDuration(u.Timeout)
	return d
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
