package models

// Defaults applied when the authenticated caller carries no subscription
// claims. They are a minimal-throughput fallback, not an error.
const (
	DefaultPermitLimit   = 1
	DefaultWindowMinutes = 1
)

// Authentication methods recorded on an Identity.
const (
	AuthMethodNone   = ""
	AuthMethodBearer = "jwt"
	AuthMethodAPIKey = "api_key"
)

// Identity is the per-request view of the caller produced by the auth
// middleware and consumed read-only by the rate limiter.
type Identity struct {
	Authenticated bool   `json:"authenticated"`
	Name          string `json:"name,omitempty"`
	Method        string `json:"method,omitempty"`
	PermitLimit   int    `json:"permit_limit,omitempty"`
	WindowMinutes int    `json:"window_minutes,omitempty"`
}

// Anonymous is the identity of an unauthenticated caller.
func Anonymous() Identity {
	return Identity{}
}
