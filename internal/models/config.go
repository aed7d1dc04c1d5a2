// Package models - Service configuration and operational settings.
// This file defines the configuration structures for all service components.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, security, etc.)
// - Defaults that work out of the box for a local demo
// - Validation that catches misconfigurations at startup, never per request
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Stats type constants
const (
	StatsTypeNone   = "none"
	StatsTypeMemory = "memory"
	StatsTypeRedis  = "redis"
)

// Queue order values accepted by RateLimitConfig.Authenticated.QueueOrder.
const (
	QueueOrderOldestFirst = "oldest_first"
	QueueOrderNewestFirst = "newest_first"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: Account store backend and seed accounts
// - Security: Bearer token signing and API key header
// - RateLimit: Authenticated and anonymous limiter tiers
// - Stats: Decision statistics backend
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus endpoint
// - Observability: Tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server" envPrefix:"SERVER_"`
	Storage       StorageConfig       `yaml:"storage" json:"storage" envPrefix:"STORAGE_"`
	Security      SecurityConfig      `yaml:"security" json:"security" envPrefix:"SECURITY_"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Stats         StatsConfig         `yaml:"stats" json:"stats" envPrefix:"STATS_"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging" envPrefix:"LOG_"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics" envPrefix:"METRICS_"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" envPrefix:"OTEL_"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port" env:"PORT"`
	Host         string        `yaml:"host" json:"host" env:"HOST"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"IDLE_TIMEOUT"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled" env:"TLS_ENABLED"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file" env:"TLS_KEY_FILE"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type" env:"TYPE"`
	Database DatabaseConfig `yaml:"database" json:"database" envPrefix:"DATABASE_"`
	// Accounts are inserted at startup when missing. File only.
	Accounts []AccountSeed `yaml:"accounts" json:"accounts" env:"-"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn" env:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// AccountSeed describes an account provisioned from configuration.
type AccountSeed struct {
	UserName      string `yaml:"user_name" json:"user_name"`
	APIKey        string `yaml:"api_key" json:"api_key"`
	PermitLimit   int    `yaml:"permit_limit" json:"permit_limit"`
	WindowMinutes int    `yaml:"window_minutes" json:"window_minutes"`
}

type SecurityConfig struct {
	JWT          JWTConfig `yaml:"jwt" json:"jwt" envPrefix:"JWT_"`
	APIKeyHeader string    `yaml:"api_key_header" json:"api_key_header" env:"API_KEY_HEADER"`
}

type JWTConfig struct {
	SigningKey    string        `yaml:"signing_key" json:"-" env:"SIGNING_KEY"`
	Issuer        string        `yaml:"issuer" json:"issuer" env:"ISSUER"`
	Audience      string        `yaml:"audience" json:"audience" env:"AUDIENCE"`
	TokenLifetime time.Duration `yaml:"token_lifetime" json:"token_lifetime" env:"TOKEN_LIFETIME"`
}

// RateLimitConfig configures both limiter tiers. Authenticated callers get a
// fixed window whose size comes from their subscription; only the queueing
// behaviour is process-wide. Anonymous callers share a single token bucket.
type RateLimitConfig struct {
	Enabled       bool              `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Authenticated AuthenticatedTier `yaml:"authenticated" json:"authenticated" envPrefix:"AUTHENTICATED_"`
	Anonymous     AnonymousTier     `yaml:"anonymous" json:"anonymous" envPrefix:"ANONYMOUS_"`
	IdleTTL       time.Duration     `yaml:"idle_ttl" json:"idle_ttl" env:"IDLE_TTL"`
}

type AuthenticatedTier struct {
	QueueLimit int    `yaml:"queue_limit" json:"queue_limit" env:"QUEUE_LIMIT"`
	QueueOrder string `yaml:"queue_order" json:"queue_order" env:"QUEUE_ORDER"`
}

type AnonymousTier struct {
	TokenLimit          int           `yaml:"token_limit" json:"token_limit" env:"TOKEN_LIMIT"`
	ReplenishmentPeriod time.Duration `yaml:"replenishment_period" json:"replenishment_period" env:"REPLENISHMENT_PERIOD"`
	TokensPerPeriod     int           `yaml:"tokens_per_period" json:"tokens_per_period" env:"TOKENS_PER_PERIOD"`
}

type StatsConfig struct {
	Type      string        `yaml:"type" json:"type" env:"TYPE"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
	// TrackPartitions records counters per partition key. Cardinality grows
	// with the number of distinct callers.
	TrackPartitions bool        `yaml:"track_partitions" json:"track_partitions" env:"TRACK_PARTITIONS"`
	Redis           RedisConfig `yaml:"redis" json:"redis" envPrefix:"REDIS_"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr" env:"ADDR"`
	Password string `yaml:"password" json:"-" env:"PASSWORD"`
	DB       int    `yaml:"db" json:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`

	// WriteTimeout bounds recording a decision, which happens on the
	// request path.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level" env:"LEVEL"`
	Format   string `yaml:"format" json:"format" env:"FORMAT"`
	Output   string `yaml:"output" json:"output" env:"OUTPUT"`
	FilePath string `yaml:"file_path" json:"file_path" env:"FILE_PATH"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" json:"path" env:"PATH"`
	Port    int    `yaml:"port" json:"port" env:"PORT"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name" env:"SERVICE_NAME"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing" envPrefix:"TRACING_"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled" env:"ENABLED"`
	Exporter     string  `yaml:"exporter" json:"exporter" env:"EXPORTER"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate" env:"SAMPLE_RATE"`
}

// NewDefaultConfig creates a configuration with working defaults.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - Memory storage: No external dependencies for the demo
// - Anonymous tier: 100 tokens, 10 more every minute, shared by all anonymous callers
// - Queueing disabled: rejected callers get an immediate 429 with Retry-After
// - Stats in memory, metrics on a separate port
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Accounts: []AccountSeed{},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:        "ratelimiter",
				Audience:      "ratelimiter",
				TokenLifetime: time.Hour,
			},
			APIKeyHeader: "X-API-Key",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Authenticated: AuthenticatedTier{
				QueueLimit: 0,
				QueueOrder: QueueOrderOldestFirst,
			},
			Anonymous: AnonymousTier{
				TokenLimit:          100,
				ReplenishmentPeriod: time.Minute,
				TokensPerPeriod:     10,
			},
		},
		Stats: StatsConfig{
			Type:      StatsTypeMemory,
			KeyPrefix: "ratelimit:stats",
			TTL:       24 * time.Hour,
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				PoolSize:     10,
				WriteTimeout: 100 * time.Millisecond,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "ratelimiter",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("invalid stats config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	validTypes := []string{StorageTypeMemory, StorageTypePostgres, StorageTypeSQLite}
	if !slices.Contains(validTypes, stc.Type) {
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.Type != StorageTypeMemory && stc.Database.DSN == "" {
		return errors.New("database DSN is required for database storage")
	}

	seen := make(map[string]bool, len(stc.Accounts))
	for _, a := range stc.Accounts {
		if a.UserName == "" {
			return errors.New("seed account user name cannot be empty")
		}
		if seen[a.UserName] {
			return fmt.Errorf("duplicate seed account: %s", a.UserName)
		}
		seen[a.UserName] = true
		if a.PermitLimit < 0 || a.WindowMinutes < 0 {
			return fmt.Errorf("seed account %s: limits cannot be negative", a.UserName)
		}
	}

	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.APIKeyHeader == "" {
		return errors.New("API key header cannot be empty")
	}
	if sec.JWT.TokenLifetime <= 0 {
		return errors.New("token lifetime must be positive")
	}
	if sec.JWT.SigningKey != "" && len(sec.JWT.SigningKey) < 32 {
		return errors.New("JWT signing key must be at least 32 bytes")
	}
	return nil
}

func (rl *RateLimitConfig) Validate() error {
	if !rl.Enabled {
		return nil
	}

	if rl.Authenticated.QueueLimit < 0 {
		return errors.New("queue limit cannot be negative")
	}

	validOrders := []string{QueueOrderOldestFirst, QueueOrderNewestFirst}
	if !slices.Contains(validOrders, rl.Authenticated.QueueOrder) {
		return fmt.Errorf("invalid queue order: %s", rl.Authenticated.QueueOrder)
	}

	if rl.Anonymous.TokenLimit <= 0 {
		return errors.New("anonymous token limit must be positive")
	}
	if rl.Anonymous.ReplenishmentPeriod <= 0 {
		return errors.New("anonymous replenishment period must be positive")
	}
	if rl.Anonymous.TokensPerPeriod <= 0 {
		return errors.New("anonymous tokens per period must be positive")
	}

	if rl.IdleTTL < 0 {
		return errors.New("idle TTL cannot be negative")
	}

	return nil
}

func (st *StatsConfig) Validate() error {
	validTypes := []string{StatsTypeNone, StatsTypeMemory, StatsTypeRedis}
	if !slices.Contains(validTypes, st.Type) {
		return fmt.Errorf("invalid stats type: %s", st.Type)
	}

	if st.TTL < 0 {
		return errors.New("stats TTL cannot be negative")
	}

	if st.Type == StatsTypeRedis && st.Redis.Addr == "" {
		return errors.New("Redis address is required when stats type is redis")
	}

	if st.Redis.WriteTimeout < 0 {
		return errors.New("Redis write timeout cannot be negative")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	if !slices.Contains(validFormats, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !slices.Contains(validOutputs, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}

	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("unsupported trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}
