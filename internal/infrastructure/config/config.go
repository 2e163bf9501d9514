package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "SOE_"
	// DefaultFile is read when present; SOE_CONFIG_FILE overrides the path.
	DefaultFile = "configs/config.yaml"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Security  SecurityConfig  `koanf:"security"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	Audit     AuditConfig     `koanf:"audit"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// ValidateRequests checks /v1 requests against the embedded OpenAPI document.
	ValidateRequests bool `koanf:"validate_requests"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	// ViewAsTTL bounds how long a "view as" override survives without being refreshed.
	ViewAsTTL time.Duration `koanf:"view_as_ttl"`
}

type SecurityConfig struct {
	JWTSecret string          `koanf:"jwt_secret"`
	JWTIssuer string          `koanf:"jwt_issuer"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`

	// Distributed shares the per-second budget across replicas through Redis.
	Distributed bool `koanf:"distributed"`
}

type LifecycleConfig struct {
	// MaxConflictRetries is how many times a lost optimistic check is re-fetched and
	// re-evaluated before ConcurrentModification reaches the caller.
	MaxConflictRetries int           `koanf:"max_conflict_retries"`
	RequestTimeout     time.Duration `koanf:"request_timeout"`
}

type AuditConfig struct {
	StreamKeyPrefix string `koanf:"stream_key_prefix"`
	StreamMaxLen    int64  `koanf:"stream_max_len"`
	PostgresEnabled bool   `koanf:"postgres_enabled"`
	StreamEnabled   bool   `koanf:"stream_enabled"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	Insecure      bool          `koanf:"insecure"`
	SamplingRate  float64       `koanf:"sampling_rate"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
}

func defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL:       "redis://localhost:6379/0",
			ViewAsTTL: 8 * time.Hour,
		},
		Security: SecurityConfig{
			JWTIssuer: "secops-identity",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 20,
				BurstSize:         40,
			},
		},
		Lifecycle: LifecycleConfig{
			MaxConflictRetries: 2,
			RequestTimeout:     5 * time.Second,
		},
		Audit: AuditConfig{
			StreamKeyPrefix: "soe:audit:",
			StreamMaxLen:    100000,
			PostgresEnabled: true,
			StreamEnabled:   true,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:  "localhost:4317",
			Insecure:      true,
			SamplingRate:  1.0,
			ExportTimeout: 10 * time.Second,
		},
	}
}

// Load layers struct defaults, an optional YAML file and SOE_ environment variables.
// Nested keys use a double underscore: SOE_LIFECYCLE__MAX_CONFLICT_RETRIES=3.
func Load() (*Config, error) {
	path := os.Getenv(envPrefix + "CONFIG_FILE")
	if path == "" {
		path = DefaultFile
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks values the process cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required"))
	}
	if len(c.Security.JWTSecret) < 32 {
		errs = append(errs, errors.New("security.jwt_secret must be at least 32 bytes"))
	}
	if c.Lifecycle.MaxConflictRetries < 0 || c.Lifecycle.MaxConflictRetries > 10 {
		errs = append(errs, fmt.Errorf("lifecycle.max_conflict_retries must be between 0 and 10, got %d", c.Lifecycle.MaxConflictRetries))
	}
	if c.Lifecycle.RequestTimeout <= 0 {
		errs = append(errs, errors.New("lifecycle.request_timeout must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Security.RateLimit.RequestsPerSecond <= 0 || c.Security.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("security.rate_limit values must be positive"))
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, errors.New("telemetry.sampling_rate must be within [0, 1]"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
