package storage

import (
	"context"
	"ratelimiter/internal/models"
	"time"
)

// Storage defines the interface for account persistence and lookup.
// Accounts carry the subscription that sizes a caller's rate limit. The
// interface is implemented by in-memory, SQLite and PostgreSQL backends.
type Storage interface {
	// GetAccountByAPIKeyHash retrieves the account owning the SHA-256 hex hash
	// of an API key. Returns ErrNotFound if no account matches.
	GetAccountByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error)

	// GetAccountByUserName retrieves an account by its unique user name.
	// Returns ErrNotFound if no account matches.
	GetAccountByUserName(ctx context.Context, userName string) (*models.Account, error)

	// SaveAccount creates or updates the account with the same user name.
	// The stored ID and creation time of an existing account are kept.
	SaveAccount(ctx context.Context, account *models.Account) error

	// Accounts returns all accounts ordered by user name
	Accounts(ctx context.Context) ([]*models.Account, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (memory, sqlite, postgres)
	Type string `json:"type" yaml:"type"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`
}
