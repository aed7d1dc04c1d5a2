package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"ratelimiter/internal/models"
	"ratelimiter/internal/storage"
	"strings"

	"github.com/gorilla/mux"
)

// DefaultAPIKeyHeader is used when no header name is configured.
const DefaultAPIKeyHeader = "X-API-Key"

// Authenticator resolves the caller of a request to an Identity.
type Authenticator struct {
	store        storage.Storage
	tokens       *TokenIssuer
	apiKeyHeader string
}

// NewAuthenticator returns an Authenticator backed by store. tokens may be nil
// to disable bearer tokens.
func NewAuthenticator(store storage.Storage, tokens *TokenIssuer, apiKeyHeader string) *Authenticator {
	if apiKeyHeader == "" {
		apiKeyHeader = DefaultAPIKeyHeader
	}
	return &Authenticator{store: store, tokens: tokens, apiKeyHeader: apiKeyHeader}
}

// Middleware attaches the caller's identity to the request context.
// Authentication is optional: missing or invalid credentials continue as
// anonymous.
func Middleware(store storage.Storage, tokens *TokenIssuer, apiKeyHeader string) mux.MiddlewareFunc {
	a := NewAuthenticator(store, tokens, apiKeyHeader)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := a.Authenticate(r)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Authenticate checks the Authorization bearer token first, then the API key
// header.
func (a *Authenticator) Authenticate(r *http.Request) models.Identity {
	ctx := r.Context()

	if token, ok := bearerToken(r); ok && a.tokens != nil {
		subject, err := a.tokens.Verify(token)
		if err != nil {
			slog.Debug("Rejected bearer token", "error", err, "remote_addr", r.RemoteAddr)
			return models.Anonymous()
		}
		return a.identityFor(ctx, subject, models.AuthMethodBearer)
	}

	if key := strings.TrimSpace(r.Header.Get(a.apiKeyHeader)); key != "" {
		account, err := a.store.GetAccountByAPIKeyHash(ctx, models.HashAPIKey(key))
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				slog.Error("API key lookup failed", "error", err)
			} else {
				slog.Debug("Unknown API key", "remote_addr", r.RemoteAddr)
			}
			return models.Anonymous()
		}
		return withLimits(account.UserName, models.AuthMethodAPIKey, account)
	}

	return models.Anonymous()
}

// identityFor attaches the subscription of userName, falling back to the
// default limits when the account or its subscription is absent.
func (a *Authenticator) identityFor(ctx context.Context, userName, method string) models.Identity {
	account, err := a.store.GetAccountByUserName(ctx, userName)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		account = nil
	case err != nil:
		slog.Error("Account lookup failed", "user_name", userName, "error", err)
		account = nil
	}
	return withLimits(userName, method, account)
}

func withLimits(userName, method string, account *models.Account) models.Identity {
	permits, minutes := account.Limits()
	return models.Identity{
		Authenticated: true,
		Name:          userName,
		Method:        method,
		PermitLimit:   permits,
		WindowMinutes: minutes,
	}
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
