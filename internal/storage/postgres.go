package storage

import (
	"context"
	"errors"
	"fmt"
	"ratelimiter/internal/models"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	user_name      TEXT NOT NULL UNIQUE,
	api_key_hash   TEXT UNIQUE,
	api_key_prefix TEXT NOT NULL DEFAULT '',
	permit_limit   INTEGER,
	window_minutes INTEGER,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
)`

const postgresSelectAccount = `SELECT id, user_name, api_key_hash, api_key_prefix, permit_limit, window_minutes, created_at, updated_at FROM accounts`

// PostgresStorage implements the Storage interface using PostgreSQL through a
// pgx connection pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance and ensures
// the schema exists.
func NewPostgresStorage(config Config) (Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 && config.MaxIdleConns <= int(poolConfig.MaxConns) {
		poolConfig.MinConns = int32(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// GetAccountByAPIKeyHash retrieves an account by the SHA-256 hash of its key.
func (ps *PostgresStorage) GetAccountByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error) {
	return ps.queryAccount(ctx, postgresSelectAccount+` WHERE api_key_hash = $1`, hash)
}

// GetAccountByUserName retrieves an account by user name.
func (ps *PostgresStorage) GetAccountByUserName(ctx context.Context, userName string) (*models.Account, error) {
	return ps.queryAccount(ctx, postgresSelectAccount+` WHERE user_name = $1`, userName)
}

// SaveAccount stores or updates an account (upsert on user name).
func (ps *PostgresStorage) SaveAccount(ctx context.Context, account *models.Account) error {
	if account.APIKeyHash != "" {
		owner, err := ps.GetAccountByAPIKeyHash(ctx, account.APIKeyHash)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to check api key owner: %w", err)
		}
		if owner != nil && owner.UserName != account.UserName {
			return ErrDuplicate
		}
	}

	prepareForSave(account, time.Now().UTC())
	permit, window := subscriptionColumns(account.Subscription)

	err := ps.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, user_name, api_key_hash, api_key_prefix, permit_limit, window_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_name) DO UPDATE SET
			api_key_hash = EXCLUDED.api_key_hash,
			api_key_prefix = EXCLUDED.api_key_prefix,
			permit_limit = EXCLUDED.permit_limit,
			window_minutes = EXCLUDED.window_minutes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		account.ID, account.UserName, nullableString(account.APIKeyHash), account.APIKeyPrefix,
		permit, window, account.CreatedAt, account.UpdatedAt,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.UserName, err)
	}
	return nil
}

// Accounts returns all accounts sorted by user name
func (ps *PostgresStorage) Accounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := ps.pool.Query(ctx, postgresSelectAccount+` ORDER BY user_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*models.Account{}
	for rows.Next() {
		a, err := scanPostgresAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func (ps *PostgresStorage) queryAccount(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a, err := scanPostgresAccount(ps.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func scanPostgresAccount(row pgx.Row) (*models.Account, error) {
	var r accountRow
	var createdAt, updatedAt time.Time
	if err := row.Scan(append(r.scanTargets(), &createdAt, &updatedAt)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return r.toModel(createdAt.UTC(), updatedAt.UTC()), nil
}
