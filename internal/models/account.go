package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account is a caller that may authenticate with an API key or a bearer
// token. The raw API key is never persisted; only its SHA-256 hex hash and an
// 8-character display prefix are stored.
type Account struct {
	ID           string        `json:"id"`
	UserName     string        `json:"user_name"`
	APIKeyHash   string        `json:"api_key_hash,omitempty"`
	APIKeyPrefix string        `json:"api_key_prefix,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Subscription carries the per-account rate limit. PermitLimit requests are
// admitted per window of WindowMinutes minutes.
type Subscription struct {
	PermitLimit   int `json:"permit_limit" yaml:"permit_limit"`
	WindowMinutes int `json:"window_minutes" yaml:"window_minutes"`
}

// NewAccount creates an account for userName. rawKey may be empty for
// accounts that only log in with a bearer token.
func NewAccount(id, userName, rawKey string, sub *Subscription) *Account {
	now := time.Now().UTC()
	a := &Account{
		ID:           id,
		UserName:     userName,
		Subscription: sub,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if rawKey != "" {
		a.APIKeyHash = HashAPIKey(rawKey)
		a.APIKeyPrefix = keyPrefix(rawKey)
	}
	return a
}

func keyPrefix(rawKey string) string {
	if len(rawKey) > 8 {
		return rawKey[:8]
	}
	return rawKey
}

// GenerateAPIKey produces a new random API key in the format rl_<44 url-safe base64 chars>.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 33) // 33 bytes → 44 base64url chars
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return "rl_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPIKey computes the SHA-256 hex digest of a raw API key.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// NewAccountID generates a new UUID v4 for use as an Account ID.
func NewAccountID() string {
	return uuid.New().String()
}

// Limits returns the subscription limits, substituting 1 for anything the
// account does not define.
func (a *Account) Limits() (permitLimit, windowMinutes int) {
	permitLimit, windowMinutes = DefaultPermitLimit, DefaultWindowMinutes
	if a == nil || a.Subscription == nil {
		return permitLimit, windowMinutes
	}
	if a.Subscription.PermitLimit > 0 {
		permitLimit = a.Subscription.PermitLimit
	}
	if a.Subscription.WindowMinutes > 0 {
		windowMinutes = a.Subscription.WindowMinutes
	}
	return permitLimit, windowMinutes
}
