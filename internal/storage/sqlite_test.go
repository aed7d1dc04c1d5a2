package storage

import (
	"context"
	"os"
	"path/filepath"
	"ratelimiter/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	storage, err := NewSQLiteStorage(Config{Type: "sqlite", ConnectionString: dbPath})
	require.NoError(t, err)
	defer storage.Close()

	testStorageContract(t, storage)
}

func TestSQLiteStorage_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	first, err := NewSQLiteStorage(Config{ConnectionString: dbPath})
	require.NoError(t, err)
	alice := models.NewAccount(models.NewAccountID(), "alice", "rl_key", &models.Subscription{PermitLimit: 5, WindowMinutes: 1})
	require.NoError(t, first.SaveAccount(ctx, alice))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStorage(Config{ConnectionString: dbPath})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetAccountByAPIKeyHash(ctx, models.HashAPIKey("rl_key"))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, 5, got.Subscription.PermitLimit)
	assert.WithinDuration(t, alice.CreatedAt, got.CreatedAt, 0)
}

func TestSQLiteStorageErrors(t *testing.T) {
	t.Run("Invalid Connection String", func(t *testing.T) {
		_, err := NewSQLiteStorage(Config{Type: "sqlite", ConnectionString: ""})
		assert.Error(t, err)
	})

	t.Run("Database Creation", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		storage, err := NewSQLiteStorage(Config{Type: "sqlite", ConnectionString: dbPath})
		require.NoError(t, err, "SQLite should create the database file")
		storage.Close()

		_, err = os.Stat(dbPath)
		assert.NoError(t, err, "database file should have been created")
	})
}
