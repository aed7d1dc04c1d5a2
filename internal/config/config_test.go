package config

import (
	"os"
	"path/filepath"
	"ratelimiter/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 8081
  host: "localhost"
  read_timeout: 10s
  write_timeout: 15s
  idle_timeout: 60s

storage:
  type: "sqlite"
  database:
    dsn: "./data/accounts.db"
  accounts:
    - user_name: alice
      api_key: rl_alice-key
      permit_limit: 5
      window_minutes: 1
    - user_name: guest

security:
  jwt:
    signing_key: "0123456789abcdef0123456789abcdef"
    issuer: "tests"
    audience: "tests"
    token_lifetime: 30m
  api_key_header: "X-Key"

rate_limit:
  enabled: true
  authenticated:
    queue_limit: 2
    queue_order: newest_first
  anonymous:
    token_limit: 50
    replenishment_period: 30s
    tokens_per_period: 5
  idle_ttl: 10m

stats:
  type: memory
  track_partitions: true

logging:
  level: "debug"
  format: "text"
  output: "stdout"

metrics:
  enabled: true
  path: "/prom"
  port: 9191
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 10*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, config.Server.WriteTimeout)

	assert.Equal(t, models.StorageTypeSQLite, config.Storage.Type)
	assert.Equal(t, "./data/accounts.db", config.Storage.Database.DSN)
	require.Len(t, config.Storage.Accounts, 2)
	assert.Equal(t, models.AccountSeed{UserName: "alice", APIKey: "rl_alice-key", PermitLimit: 5, WindowMinutes: 1}, config.Storage.Accounts[0])
	assert.Equal(t, "guest", config.Storage.Accounts[1].UserName)

	assert.Equal(t, "tests", config.Security.JWT.Issuer)
	assert.Equal(t, 30*time.Minute, config.Security.JWT.TokenLifetime)
	assert.Equal(t, "X-Key", config.Security.APIKeyHeader)

	assert.Equal(t, 2, config.RateLimit.Authenticated.QueueLimit)
	assert.Equal(t, models.QueueOrderNewestFirst, config.RateLimit.Authenticated.QueueOrder)
	assert.Equal(t, 50, config.RateLimit.Anonymous.TokenLimit)
	assert.Equal(t, 30*time.Second, config.RateLimit.Anonymous.ReplenishmentPeriod)
	assert.Equal(t, 5, config.RateLimit.Anonymous.TokensPerPeriod)
	assert.Equal(t, 10*time.Minute, config.RateLimit.IdleTTL)

	assert.True(t, config.Stats.TrackPartitions)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "/prom", config.Metrics.Path)
	assert.Equal(t, 9191, config.Metrics.Port)
}

func TestLoad_WithDefaults(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 9000
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	defaults := models.NewDefaultConfig()
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, defaults.Server.Host, config.Server.Host)
	assert.Equal(t, defaults.RateLimit, config.RateLimit)
	assert.Equal(t, defaults.Stats, config.Stats)
	assert.Equal(t, defaults.Observability, config.Observability)
}

func TestLoad_NoFile(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, models.NewDefaultConfig().Server, config.Server)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Setenv("RATELIMITER_SERVER_PORT", "9999")
	t.Setenv("RATELIMITER_SERVER_READ_TIMEOUT", "5s")
	t.Setenv("RATELIMITER_STORAGE_TYPE", "postgres")
	t.Setenv("RATELIMITER_STORAGE_DATABASE_DSN", "postgres://localhost/ratelimiter")
	t.Setenv("RATELIMITER_SECURITY_JWT_SIGNING_KEY", "ffffffffffffffffffffffffffffffff")
	t.Setenv("RATELIMITER_RATE_LIMIT_AUTHENTICATED_QUEUE_LIMIT", "3")
	t.Setenv("RATELIMITER_RATE_LIMIT_ANONYMOUS_TOKEN_LIMIT", "20")
	t.Setenv("RATELIMITER_RATE_LIMIT_ANONYMOUS_REPLENISHMENT_PERIOD", "10s")
	t.Setenv("RATELIMITER_STATS_TYPE", "redis")
	t.Setenv("RATELIMITER_STATS_REDIS_ADDR", "redis:6379")
	t.Setenv("RATELIMITER_LOG_LEVEL", "warn")
	t.Setenv("RATELIMITER_METRICS_ENABLED", "false")
	t.Setenv("RATELIMITER_OTEL_TRACING_ENABLED", "true")
	t.Setenv("RATELIMITER_OTEL_TRACING_EXPORTER", "otlp")
	t.Setenv("RATELIMITER_OTEL_TRACING_OTLP_ENDPOINT", "collector:4317")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, 5*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, models.StorageTypePostgres, config.Storage.Type)
	assert.Equal(t, "postgres://localhost/ratelimiter", config.Storage.Database.DSN)
	assert.Equal(t, "ffffffffffffffffffffffffffffffff", config.Security.JWT.SigningKey)
	assert.Equal(t, 3, config.RateLimit.Authenticated.QueueLimit)
	assert.Equal(t, 20, config.RateLimit.Anonymous.TokenLimit)
	assert.Equal(t, 10*time.Second, config.RateLimit.Anonymous.ReplenishmentPeriod)
	assert.Equal(t, models.StatsTypeRedis, config.Stats.Type)
	assert.Equal(t, "redis:6379", config.Stats.Redis.Addr)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.False(t, config.Metrics.Enabled)
	assert.True(t, config.Observability.Tracing.Enabled)
	assert.Equal(t, "collector:4317", config.Observability.Tracing.OTLPEndpoint)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 8081
logging:
  level: debug
`)
	t.Setenv("RATELIMITER_SERVER_PORT", "8082")

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 8082, config.Server.Port)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("RATELIMITER_SERVER_PORT", "not-a-number")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from environment")
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configFile := writeConfig(t, "server:\n  port: [not valid\n")

	_, err := Load(configFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoad_EmptyConfigFile(t *testing.T) {
	configFile := writeConfig(t, "")

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 8080, config.Server.Port)
}

func TestLoad_UnknownKeysAreIgnored(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 8083
  cors:
    enabled: true
cache:
  type: memory
`)

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 8083, config.Server.Port)
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "invalid port",
			content: "server:\n  port: 70000\n",
			errMsg:  "port must be between 1 and 65535",
		},
		{
			name:    "database storage without DSN",
			content: "storage:\n  type: sqlite\n",
			errMsg:  "database DSN is required",
		},
		{
			name:    "short signing key",
			content: "security:\n  jwt:\n    signing_key: short\n",
			errMsg:  "JWT signing key must be at least 32 bytes",
		},
		{
			name:    "unknown queue order",
			content: "rate_limit:\n  authenticated:\n    queue_order: random\n",
			errMsg:  "invalid queue order",
		},
		{
			name:    "zero anonymous bucket",
			content: "rate_limit:\n  anonymous:\n    token_limit: 0\n",
			errMsg:  "invalid rate limit config",
		},
		{
			name:    "redis stats without address",
			content: "stats:\n  type: redis\n  redis:\n    addr: \"\"\n",
			errMsg:  "Redis address is required when stats type is redis",
		},
		{
			name:    "tls without certificates",
			content: "server:\n  tls_enabled: true\n",
			errMsg:  "TLS cert file is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_DisabledRateLimitSkipsTierValidation(t *testing.T) {
	configFile := writeConfig(t, `
rate_limit:
  enabled: false
  anonymous:
    token_limit: 0
`)

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.False(t, config.RateLimit.Enabled)
}

func TestSaveExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.example.yaml")
	require.NoError(t, SaveExample(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	config, err := Load(path)
	require.NoError(t, err, "the example must load cleanly")
	require.Len(t, config.Storage.Accounts, 2)
	assert.Equal(t, "alice", config.Storage.Accounts[0].UserName)
	assert.Equal(t, 5, config.Storage.Accounts[0].PermitLimit)
	assert.NotEmpty(t, config.Security.JWT.SigningKey)
}
