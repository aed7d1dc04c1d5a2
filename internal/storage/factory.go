package storage

import (
	"context"
	"fmt"
	"log/slog"
	"ratelimiter/internal/models"
)

// Factory provides a centralized way to create storage instances based on configuration.
// This allows for easy extensibility and provider swapping without code changes.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage provider based on the provided configuration.
// Supported providers:
//   - memory: In-memory storage (for testing/development)
//   - postgres: PostgreSQL database storage (production-ready)
//   - sqlite: SQLite database storage (lightweight database)
func (f *Factory) Create(config models.StorageConfig) (Storage, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	storageConfig := Config{
		Type:             config.Type,
		ConnectionString: config.Database.DSN,
		MaxOpenConns:     config.Database.MaxOpenConns,
		MaxIdleConns:     config.Database.MaxIdleConns,
		ConnMaxLifetime:  config.Database.ConnMaxLifetime,
	}

	switch config.Type {
	case models.StorageTypeMemory:
		return NewMemoryStorage(storageConfig)
	case models.StorageTypePostgres:
		return NewPostgresStorage(storageConfig)
	case models.StorageTypeSQLite:
		return NewSQLiteStorage(storageConfig)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// Open creates the configured store, wraps it with wrap when non-nil, and
// inserts the configured seed accounts through the wrapped store. The store
// is closed again if seeding fails.
func (f *Factory) Open(ctx context.Context, config models.StorageConfig, wrap func(Storage) (Storage, error)) (Storage, error) {
	base, err := f.Create(config)
	if err != nil {
		return nil, err
	}

	store := base
	if wrap != nil {
		if store, err = wrap(base); err != nil {
			base.Close()
			return nil, fmt.Errorf("failed to wrap %s storage: %w", config.Type, err)
		}
	}

	created, err := SeedAccounts(ctx, store, config.Accounts)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to seed accounts: %w", err)
	}
	slog.Info("Storage ready", "type", config.Type, "seed_accounts", len(config.Accounts), "created", created)
	return store, nil
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return []string{models.StorageTypeMemory, models.StorageTypePostgres, models.StorageTypeSQLite}
}

// ValidateConfig validates that a storage configuration is valid for its type
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	switch config.Type {
	case models.StorageTypeMemory:
		// Memory storage requires no additional configuration
	case models.StorageTypePostgres, models.StorageTypeSQLite:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", config.Type)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Type)
	}
	return nil
}
