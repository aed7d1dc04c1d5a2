package storage

import (
	"context"
	"errors"
	"fmt"
	"ratelimiter/internal/models"
)

// SeedAccounts makes sure every configured account exists with the configured
// subscription and API key. Running it again with the same seeds changes
// nothing. It returns the number of accounts created.
func SeedAccounts(ctx context.Context, store Storage, seeds []models.AccountSeed) (int, error) {
	created := 0
	for _, seed := range seeds {
		sub := &models.Subscription{PermitLimit: seed.PermitLimit, WindowMinutes: seed.WindowMinutes}
		if seed.PermitLimit == 0 && seed.WindowMinutes == 0 {
			sub = nil
		}

		existing, err := store.GetAccountByUserName(ctx, seed.UserName)
		switch {
		case errors.Is(err, ErrNotFound):
			account := models.NewAccount(models.NewAccountID(), seed.UserName, seed.APIKey, sub)
			if err := store.SaveAccount(ctx, account); err != nil {
				return created, fmt.Errorf("seed account %s: %w", seed.UserName, err)
			}
			created++
		case err != nil:
			return created, fmt.Errorf("seed account %s: %w", seed.UserName, err)
		default:
			if !seedChanges(existing, seed, sub) {
				continue
			}
			existing.Subscription = sub
			if seed.APIKey != "" {
				fresh := models.NewAccount(existing.ID, existing.UserName, seed.APIKey, sub)
				existing.APIKeyHash = fresh.APIKeyHash
				existing.APIKeyPrefix = fresh.APIKeyPrefix
			}
			if err := store.SaveAccount(ctx, existing); err != nil {
				return created, fmt.Errorf("seed account %s: %w", seed.UserName, err)
			}
		}
	}
	return created, nil
}

func seedChanges(existing *models.Account, seed models.AccountSeed, sub *models.Subscription) bool {
	if seed.APIKey != "" && models.HashAPIKey(seed.APIKey) != existing.APIKeyHash {
		return true
	}
	switch {
	case sub == nil && existing.Subscription == nil:
		return false
	case sub == nil || existing.Subscription == nil:
		return true
	default:
		return *sub != *existing.Subscription
	}
}
