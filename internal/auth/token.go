package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"ratelimiter/internal/models"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrEmptySubject   = errors.New("token subject is required")
	ErrExpirationPast = errors.New("token expiration must be in the future")
)

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	key      []byte
	issuer   string
	audience string
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenIssuer builds an issuer from cfg. When no signing key is configured
// a random one is generated, so tokens do not survive a restart.
func NewTokenIssuer(cfg models.JWTConfig) (*TokenIssuer, error) {
	key := []byte(cfg.SigningKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		slog.Warn("No JWT signing key configured, using an ephemeral key")
	}

	lifetime := cfg.TokenLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	return &TokenIssuer{
		key:      key,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// Issue signs a token for subject. A zero expiresAt uses the configured
// lifetime.
func (ti *TokenIssuer) Issue(subject string, expiresAt time.Time) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, ErrEmptySubject
	}

	now := ti.now()
	if expiresAt.IsZero() {
		expiresAt = now.Add(ti.lifetime)
	}
	if !expiresAt.After(now) {
		return "", time.Time{}, ErrExpirationPast
	}
	// Tokens carry whole seconds.
	expiresAt = expiresAt.UTC().Truncate(time.Second)

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    ti.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if ti.audience != "" {
		claims.Audience = jwt.ClaimStrings{ti.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses a signed token and returns its subject.
func (ti *TokenIssuer) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	}
	if ti.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ti.issuer))
	}
	if ti.audience != "" {
		opts = append(opts, jwt.WithAudience(ti.audience))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return ti.key, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return "", ErrEmptySubject
	}
	return claims.Subject, nil
}
