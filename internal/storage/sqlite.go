package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"ratelimiter/internal/models"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	user_name      TEXT NOT NULL UNIQUE,
	api_key_hash   TEXT UNIQUE,
	api_key_prefix TEXT NOT NULL DEFAULT '',
	permit_limit   INTEGER,
	window_minutes INTEGER,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
)`

const sqliteSelectAccount = `SELECT id, user_name, api_key_hash, api_key_prefix, permit_limit, window_minutes, created_at, updated_at FROM accounts`

// SQLiteStorage implements the Storage interface on an SQLite database using
// the pure-Go modernc driver. The schema is created on open.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config Config) (Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY and keeps
	// :memory: databases alive.
	db.SetMaxOpenConns(1)
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{
		db: db,
	}, nil
}

// GetAccountByAPIKeyHash retrieves an account by the SHA-256 hash of its key.
func (ss *SQLiteStorage) GetAccountByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error) {
	return ss.queryAccount(ctx, sqliteSelectAccount+` WHERE api_key_hash = ?`, hash)
}

// GetAccountByUserName retrieves an account by user name.
func (ss *SQLiteStorage) GetAccountByUserName(ctx context.Context, userName string) (*models.Account, error) {
	return ss.queryAccount(ctx, sqliteSelectAccount+` WHERE user_name = ?`, userName)
}

// SaveAccount stores or updates an account (upsert on user name).
func (ss *SQLiteStorage) SaveAccount(ctx context.Context, account *models.Account) error {
	if account.APIKeyHash != "" {
		owner, err := ss.queryAccount(ctx, sqliteSelectAccount+` WHERE api_key_hash = ?`, account.APIKeyHash)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to check api key owner: %w", err)
		}
		if owner != nil && owner.UserName != account.UserName {
			return ErrDuplicate
		}
	}

	prepareForSave(account, time.Now().UTC())
	permit, window := subscriptionColumns(account.Subscription)

	var id, createdAt string
	err := ss.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, user_name, api_key_hash, api_key_prefix, permit_limit, window_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_name) DO UPDATE SET
			api_key_hash = excluded.api_key_hash,
			api_key_prefix = excluded.api_key_prefix,
			permit_limit = excluded.permit_limit,
			window_minutes = excluded.window_minutes,
			updated_at = excluded.updated_at
		RETURNING id, created_at`,
		account.ID, account.UserName, nullableString(account.APIKeyHash), account.APIKeyPrefix,
		permit, window, formatTimestamp(account.CreatedAt), formatTimestamp(account.UpdatedAt),
	).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.UserName, err)
	}

	account.ID = id
	if account.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return err
	}
	return nil
}

// Accounts returns all accounts sorted by user name
func (ss *SQLiteStorage) Accounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := ss.db.QueryContext(ctx, sqliteSelectAccount+` ORDER BY user_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*models.Account{}
	for rows.Next() {
		a, err := scanSQLiteAccount(rows)
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

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

func (ss *SQLiteStorage) queryAccount(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a, err := scanSQLiteAccount(ss.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAccount(row rowScanner) (*models.Account, error) {
	var r accountRow
	var createdAt, updatedAt string
	if err := row.Scan(append(r.scanTargets(), &createdAt, &updatedAt)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	created, err := parseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTimestamp(updatedAt)
	if err != nil {
		return nil, err
	}
	return r.toModel(created, updated), nil
}
