package storage

import (
	"context"
	"ratelimiter/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStorageContract exercises behaviour every backend must share.
func testStorageContract(t *testing.T, s Storage) {
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		accounts, err := s.Accounts(ctx)
		require.NoError(t, err)
		assert.NotNil(t, accounts)
		assert.Empty(t, accounts)

		_, err = s.GetAccountByUserName(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetAccountByAPIKeyHash(ctx, models.HashAPIKey("nope"))
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, s.Ping(ctx))
	})

	t.Run("SaveAndLookup", func(t *testing.T) {
		alice := models.NewAccount(models.NewAccountID(), "alice", "rl_alice-key", &models.Subscription{PermitLimit: 5, WindowMinutes: 1})
		require.NoError(t, s.SaveAccount(ctx, alice))

		got, err := s.GetAccountByUserName(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, models.HashAPIKey("rl_alice-key"), got.APIKeyHash)
		assert.Equal(t, "rl_alice", got.APIKeyPrefix)
		require.NotNil(t, got.Subscription)
		assert.Equal(t, 5, got.Subscription.PermitLimit)
		assert.Equal(t, 1, got.Subscription.WindowMinutes)
		assert.False(t, got.CreatedAt.IsZero())

		byKey, err := s.GetAccountByAPIKeyHash(ctx, models.HashAPIKey("rl_alice-key"))
		require.NoError(t, err)
		assert.Equal(t, "alice", byKey.UserName)
	})

	t.Run("AccountWithoutKeyOrSubscription", func(t *testing.T) {
		bob := models.NewAccount("", "bob", "", nil)
		require.NoError(t, s.SaveAccount(ctx, bob))
		assert.NotEmpty(t, bob.ID, "an ID is assigned on save")

		got, err := s.GetAccountByUserName(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, got.APIKeyHash)
		assert.Nil(t, got.Subscription)

		permits, minutes := got.Limits()
		assert.Equal(t, 1, permits)
		assert.Equal(t, 1, minutes)

		// A second key-less account must not collide on the unique key index.
		require.NoError(t, s.SaveAccount(ctx, models.NewAccount("", "carol", "", nil)))
	})

	t.Run("UpdateKeepsIdentity", func(t *testing.T) {
		before, err := s.GetAccountByUserName(ctx, "alice")
		require.NoError(t, err)

		update := models.NewAccount(models.NewAccountID(), "alice", "rl_rotated-key", &models.Subscription{PermitLimit: 50, WindowMinutes: 10})
		require.NoError(t, s.SaveAccount(ctx, update))
		assert.Equal(t, before.ID, update.ID)

		got, err := s.GetAccountByUserName(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, before.ID, got.ID)
		assert.Equal(t, 50, got.Subscription.PermitLimit)
		assert.Equal(t, 10, got.Subscription.WindowMinutes)
		assert.WithinDuration(t, before.CreatedAt, got.CreatedAt, 0)

		_, err = s.GetAccountByAPIKeyHash(ctx, models.HashAPIKey("rl_alice-key"))
		assert.ErrorIs(t, err, ErrNotFound, "the old key no longer resolves")
		_, err = s.GetAccountByAPIKeyHash(ctx, models.HashAPIKey("rl_rotated-key"))
		assert.NoError(t, err)
	})

	t.Run("DuplicateKey", func(t *testing.T) {
		thief := models.NewAccount("", "mallory", "rl_rotated-key", nil)
		err := s.SaveAccount(ctx, thief)
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("ListSorted", func(t *testing.T) {
		accounts, err := s.Accounts(ctx)
		require.NoError(t, err)
		names := make([]string, len(accounts))
		for i, a := range accounts {
			names[i] = a.UserName
		}
		assert.Equal(t, []string{"alice", "bob", "carol"}, names)
	})
}
