package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"ratelimiter/internal/auth"
	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"
	"ratelimiter/internal/stats"
	"ratelimiter/internal/storage"
	"ratelimiter/internal/version"
	"time"
)

// Services are the collaborators the HTTP layer depends on. Recorder and
// Partitions may be nil.
type Services struct {
	Storage    storage.Storage
	Tokens     *auth.TokenIssuer
	Partitions *ratelimit.PartitionStore
	Policy     ratelimit.Policy
	Recorder   stats.Recorder
	Observers  []ratelimit.Observer
	Version    version.Info
}

// Handlers contains HTTP handlers for the rate limiter API
type Handlers struct {
	Services
	started time.Time
	now     func() time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(s Services) *Handlers {
	if s.Policy == nil {
		s.Policy = ratelimit.DefaultTieredPolicy()
	}
	return &Handlers{
		Services: s,
		started:  time.Now(),
		now:      time.Now,
	}
}

// Login issues a bearer token for the given user name.
// POST /api/login?expiration=<RFC3339>
// The password is not checked.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.Tokens == nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "Token issuing is disabled")
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		h.writeJSONResponse(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{
			"user_name": err.Error(),
		}))
		return
	}

	now := h.now()
	expiresAt, err := models.ParseExpiration(r.URL.Query().Get("expiration"), now)
	if err != nil {
		h.writeJSONResponse(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{
			"expiration": err.Error(),
		}))
		return
	}

	token, expiresAt, err := h.Tokens.Issue(req.UserName, expiresAt)
	if err != nil {
		if errors.Is(err, auth.ErrExpirationPast) {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeValidation, err.Error())
			return
		}
		slog.Error("Failed to issue token", "user_name", req.UserName, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to issue token")
		return
	}

	slog.Info("Issued bearer token", "user_name", req.UserName, "expires_at", expiresAt)
	h.writeJSONResponse(w, http.StatusOK, &models.LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	})
}

// Ping answers 204 No Content.
// GET /api/ping
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Sample answers 204 No Content.
// GET /api/sample
func (h *Handlers) Sample(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Identity echoes the caller as the rate limiter sees it.
// GET /api/identity
func (h *Handlers) Identity(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	key, cfg := h.Policy.Classify(id)

	resp := &models.IdentityResponse{
		Identity:  id,
		Partition: string(key),
		Timestamp: h.now(),
	}
	if cfg != nil {
		resp.Algorithm = string(cfg.Algorithm())
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// Stats returns the decision counters.
// GET /api/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	if h.Recorder == nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "Statistics are disabled")
		return
	}

	snap, err := h.Recorder.Snapshot(r.Context())
	if err != nil {
		slog.Error("Failed to read statistics", "backend", snap.Backend, "error", err)
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, "Statistics backend unavailable")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, snap.Response(h.now()))
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.Version.Version
	response.Uptime = h.now().Sub(h.started).Round(time.Second).String()

	status := http.StatusOK
	if err := h.Storage.Ping(r.Context()); err != nil {
		slog.Warn("Storage health check failed", "error", err)
		response.Status = models.StatusUnhealthy
		response.AddComponent("storage", models.StatusUnhealthy, "Storage is unreachable")
		status = http.StatusServiceUnavailable
	} else {
		response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
	}

	if h.Partitions != nil {
		response.AddComponent("rate_limiter", models.StatusHealthy, "Rate limiting is active")
		response.AddMetric("partitions", h.Partitions.Len())
	} else {
		response.AddComponent("rate_limiter", models.StatusDegraded, "Rate limiting is disabled")
		if response.Status == models.StatusHealthy {
			response.Status = models.StatusDegraded
		}
	}

	if h.Recorder == nil {
		response.AddMetric("stats_enabled", false)
	} else {
		response.AddMetric("stats_enabled", true)
	}

	h.writeJSONResponse(w, status, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing left to tell the client.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, errorCode))
}
