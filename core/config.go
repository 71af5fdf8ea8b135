package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the storefront state layer.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables, after an optional .env load (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := core.NewConfig(
//	    core.WithAPIBaseURL("https://api.unimerch.example"),
//	    core.WithFileStorage("/var/lib/unimerch"),
//	)
type Config struct {
	// APIBaseURL is the fixed origin of the merchant API.
	APIBaseURL string `json:"api_base_url" yaml:"api_base_url"`

	// LoginURL is where the client navigates when the session expires.
	LoginURL string `json:"login_url" yaml:"login_url"`

	// RequestTimeout applies to the underlying http.Client only; the state
	// layer itself imposes no per-call timeout handling.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// StorageConfig selects the backend for the persisted local mirror.
type StorageConfig struct {
	Provider string `json:"provider" yaml:"provider"` // memory | file | redis
	Path     string `json:"path" yaml:"path"`         // directory for the file backend
	RedisURL string `json:"redis_url" yaml:"redis_url"`
	// Namespace prefixes every storage key, so several storefront instances
	// can share one Redis without colliding.
	Namespace string `json:"namespace" yaml:"namespace"`
}

// LoggingConfig controls the zerolog-backed default logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug | info | warn | error
	Format string `json:"format" yaml:"format"` // json | console
}

// TelemetryConfig controls optional OpenTelemetry wiring. Disabled by
// default; nothing activates unless Enabled is set.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"` // OTLP gRPC; empty means stdout exporter
	ServiceName string `json:"service_name" yaml:"service_name"`
	Insecure    bool   `json:"insecure" yaml:"insecure"`
}

// Option is a functional option for configuring the storefront.
// Options are applied in order and can return an error if invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:     "https://unimerch-api.up.railway.app",
		LoginURL:       "/pages/auth/login.html",
		RequestTimeout: 30 * time.Second,
		Storage: StorageConfig{
			Provider:  "memory",
			Namespace: "unimerch",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "unimerch-storefront",
			Insecure:    true,
		},
	}
}

// NewConfig builds a Config from defaults, environment and options, in that
// order. A .env file in the working directory is loaded first when present.
func NewConfig(opts ...Option) (*Config, error) {
	_ = godotenv.Load() // missing .env is fine

	cfg := DefaultConfig()
	cfg.applyEnv()

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.APIBaseURL, "UNIMERCH_API_BASE_URL")
	setString(&c.LoginURL, "UNIMERCH_LOGIN_URL")
	setDuration(&c.RequestTimeout, "UNIMERCH_REQUEST_TIMEOUT")
	setString(&c.Storage.Provider, "UNIMERCH_STORAGE_PROVIDER")
	setString(&c.Storage.Path, "UNIMERCH_STORAGE_PATH")
	setString(&c.Storage.RedisURL, "UNIMERCH_REDIS_URL", "REDIS_URL")
	setString(&c.Storage.Namespace, "UNIMERCH_STORAGE_NAMESPACE")
	setString(&c.Logging.Level, "UNIMERCH_LOG_LEVEL")
	setString(&c.Logging.Format, "UNIMERCH_LOG_FORMAT")
	setBool(&c.Telemetry.Enabled, "UNIMERCH_TELEMETRY_ENABLED")
	setString(&c.Telemetry.Endpoint, "UNIMERCH_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Telemetry.ServiceName, "UNIMERCH_TELEMETRY_SERVICE_NAME", "OTEL_SERVICE_NAME")
	setBool(&c.Telemetry.Insecure, "UNIMERCH_TELEMETRY_INSECURE")
}

// Validate checks cross-field consistency after all layers applied.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api base URL is required")
	}
	switch c.Storage.Provider {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("file storage needs a path")
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis storage needs a redis URL")
		}
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	return nil
}

func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
			return
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

// Functional options

// WithAPIBaseURL sets the merchant API origin.
func WithAPIBaseURL(url string) Option {
	return func(c *Config) error {
		if url == "" {
			return fmt.Errorf("api base URL cannot be empty")
		}
		c.APIBaseURL = url
		return nil
	}
}

// WithLoginURL sets the login entry point used on session expiry.
func WithLoginURL(url string) Option {
	return func(c *Config) error {
		c.LoginURL = url
		return nil
	}
}

// WithRequestTimeout sets the http.Client timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive")
		}
		c.RequestTimeout = d
		return nil
	}
}

// WithMemoryStorage keeps the local mirror in process memory only.
func WithMemoryStorage() Option {
	return func(c *Config) error {
		c.Storage.Provider = "memory"
		return nil
	}
}

// WithFileStorage persists the local mirror as JSON documents under dir.
func WithFileStorage(dir string) Option {
	return func(c *Config) error {
		if dir == "" {
			return fmt.Errorf("storage path cannot be empty")
		}
		c.Storage.Provider = "file"
		c.Storage.Path = dir
		return nil
	}
}

// WithRedisStorage keeps the local mirror in Redis.
func WithRedisStorage(redisURL string) Option {
	return func(c *Config) error {
		if redisURL == "" {
			return fmt.Errorf("redis URL cannot be empty")
		}
		c.Storage.Provider = "redis"
		c.Storage.RedisURL = redisURL
		return nil
	}
}

// WithStorageNamespace overrides the storage key prefix.
func WithStorageNamespace(ns string) Option {
	return func(c *Config) error {
		if ns == "" {
			return fmt.Errorf("namespace cannot be empty")
		}
		c.Storage.Namespace = ns
		return nil
	}
}

// WithLogLevel sets the minimum log level.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		switch level {
		case "debug", "info", "warn", "error":
			c.Logging.Level = level
			return nil
		}
		return fmt.Errorf("unknown log level %q", level)
	}
}

// WithLogFormat selects json or console output.
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		switch format {
		case "json", "console":
			c.Logging.Format = format
			return nil
		}
		return fmt.Errorf("unknown log format %q", format)
	}
}

// WithTelemetry enables OpenTelemetry export to the given OTLP endpoint.
// An empty endpoint selects the stdout exporter (development).
func WithTelemetry(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithConfigFile loads a YAML config file over the current values. Options
// appearing after this one still take precedence.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
		return nil
	}
}
