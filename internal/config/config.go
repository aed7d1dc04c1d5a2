package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// RATELIMITER_SERVER_PORT or RATELIMITER_RATE_LIMIT_ANONYMOUS_TOKEN_LIMIT.
const EnvPrefix = "RATELIMITER_"

// Load loads configuration from file and environment variables.
// Precedence, lowest first: defaults, the YAML file, the environment.
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// The limiter tiers have their own rules beyond field ranges.
	if config.RateLimit.Enabled {
		if _, err := ratelimit.NewTieredPolicy(config.RateLimit); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	return config, nil
}

// warnUnknownKeys logs keys the strict decoder rejects. They are ignored by
// the lenient decode that follows, so stale keys never stop the service.
func warnUnknownKeys(data []byte) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var strict models.Config
	err := dec.Decode(&strict)
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		for _, msg := range typeErr.Errors {
			slog.Warn("Ignoring unknown config key", "detail", msg)
		}
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnUnknownKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment applies RATELIMITER_* variables on top of config.
// Variable names follow the env and envPrefix struct tags of models.Config.
func loadFromEnvironment(config *models.Config) error {
	return env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix})
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.Storage.Accounts = []models.AccountSeed{
		{UserName: "alice", APIKey: "rl_alice-example-key", PermitLimit: 5, WindowMinutes: 1},
		{UserName: "bob", APIKey: "rl_bob-example-key", PermitLimit: 60, WindowMinutes: 10},
	}
	config.Security.JWT.SigningKey = "replace-with-a-random-secret-of-32-bytes-or-more"

	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// The example carries a signing key placeholder; keep it private.
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
