package auth

import (
	"ratelimiter/internal/models"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	ti, err := NewTokenIssuer(models.JWTConfig{
		SigningKey:    testSigningKey,
		Issuer:        "ratelimiter",
		Audience:      "ratelimiter",
		TokenLifetime: time.Hour,
	})
	require.NoError(t, err)
	ti.now = func() time.Time { return testNow }
	return ti
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	ti := newTestIssuer(t)

	token, expiresAt, err := ti.Issue("alice", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(time.Hour), expiresAt)
	assert.Len(t, strings.Split(token, "."), 3)

	subject, err := ti.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestTokenIssuer_ExplicitExpiration(t *testing.T) {
	ti := newTestIssuer(t)

	want := testNow.Add(10*time.Minute + 500*time.Millisecond)
	token, expiresAt, err := ti.Issue("alice", want)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(10*time.Minute), expiresAt)

	ti.now = func() time.Time { return testNow.Add(11 * time.Minute) }
	_, err = ti.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenIssuer_IssueErrors(t *testing.T) {
	ti := newTestIssuer(t)

	_, _, err := ti.Issue("", time.Time{})
	assert.ErrorIs(t, err, ErrEmptySubject)

	_, _, err = ti.Issue("alice", testNow.Add(-time.Second))
	assert.ErrorIs(t, err, ErrExpirationPast)
}

func TestTokenIssuer_VerifyRejects(t *testing.T) {
	ti := newTestIssuer(t)
	token, _, err := ti.Issue("alice", time.Time{})
	require.NoError(t, err)

	t.Run("Garbage", func(t *testing.T) {
		_, err := ti.Verify("not-a-token")
		assert.Error(t, err)
	})

	t.Run("WrongKey", func(t *testing.T) {
		other := newTestIssuer(t)
		other.key = []byte("ffffffffffffffffffffffffffffffff")
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("WrongAudience", func(t *testing.T) {
		other := newTestIssuer(t)
		other.audience = "someone-else"
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)
	})

	t.Run("WrongIssuer", func(t *testing.T) {
		other := newTestIssuer(t)
		other.issuer = "someone-else"
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("UnexpectedAlgorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = ti.Verify(unsigned)
		assert.Error(t, err)
	})
}

func TestNewTokenIssuer_EphemeralKey(t *testing.T) {
	a, err := NewTokenIssuer(models.JWTConfig{})
	require.NoError(t, err)
	b, err := NewTokenIssuer(models.JWTConfig{})
	require.NoError(t, err)

	assert.Len(t, a.key, 32)
	assert.NotEqual(t, a.key, b.key)
	assert.Equal(t, time.Hour, a.lifetime)

	token, _, err := a.Issue("alice", time.Time{})
	require.NoError(t, err)
	_, err = b.Verify(token)
	assert.Error(t, err, "tokens from another ephemeral key are rejected")
}
