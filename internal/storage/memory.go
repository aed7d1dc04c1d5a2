package storage

import (
	"context"
	"ratelimiter/internal/models"
	"sort"
	"sync"
	"time"
)

// MemoryStorage implements the Storage interface using in-memory data structures.
// This provider is ideal for development, testing, and scenarios where data
// persistence is not required. It provides fast access but data is lost on restart.
type MemoryStorage struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account // keyed by user name
	byHash   map[string]string          // api key hash -> user name
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		accounts: make(map[string]*models.Account),
		byHash:   make(map[string]string),
	}, nil
}

// GetAccountByAPIKeyHash retrieves an account by the SHA-256 hash of its key.
func (m *MemoryStorage) GetAccountByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAccount(m.accounts[name]), nil
}

// GetAccountByUserName retrieves an account by user name.
func (m *MemoryStorage) GetAccountByUserName(ctx context.Context, userName string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[userName]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAccount(a), nil
}

// SaveAccount stores or updates an account keyed by user name.
func (m *MemoryStorage) SaveAccount(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.APIKeyHash != "" {
		if owner, ok := m.byHash[account.APIKeyHash]; ok && owner != account.UserName {
			return ErrDuplicate
		}
	}

	c := copyAccount(account)
	if existing, ok := m.accounts[account.UserName]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
		if existing.APIKeyHash != "" && existing.APIKeyHash != c.APIKeyHash {
			delete(m.byHash, existing.APIKeyHash)
		}
	}
	prepareForSave(c, time.Now().UTC())

	m.accounts[c.UserName] = c
	if c.APIKeyHash != "" {
		m.byHash[c.APIKeyHash] = c.UserName
	}
	account.ID = c.ID
	account.CreatedAt = c.CreatedAt
	account.UpdatedAt = c.UpdatedAt
	return nil
}

// Accounts returns all accounts sorted by user name
func (m *MemoryStorage) Accounts(ctx context.Context) ([]*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]*models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		accounts = append(accounts, copyAccount(a))
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].UserName < accounts[j].UserName
	})
	return accounts, nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close clears all data from memory
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts = make(map[string]*models.Account)
	m.byHash = make(map[string]string)
	return nil
}

// copyAccount returns a deep copy to prevent external modification.
func copyAccount(a *models.Account) *models.Account {
	c := *a
	if a.Subscription != nil {
		sub := *a.Subscription
		c.Subscription = &sub
	}
	return &c
}
