package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ratelimiter/internal/models"
)

// Reporter writes the response for a rejected request.
type Reporter interface {
	Reject(w http.ResponseWriter, r *http.Request, lease Lease)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(w http.ResponseWriter, r *http.Request, lease Lease)

func (f ReporterFunc) Reject(w http.ResponseWriter, r *http.Request, lease Lease) {
	f(w, r, lease)
}

// JSONReporter answers 429 with a models.ErrorResponse body.
type JSONReporter struct{}

func (JSONReporter) Reject(w http.ResponseWriter, r *http.Request, lease Lease) {
	SetRetryAfter(w, lease)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	resp := models.NewErrorResponse("Rate limit exceeded", models.ErrorCodeRateLimitExceeded)
	if secs, ok := lease.RetryAfterSeconds(); ok {
		resp.Details = map[string]string{"retry_after_seconds": strconv.Itoa(secs)}
	}
	json.NewEncoder(w).Encode(resp)
}

// SetRetryAfter sets the Retry-After header when the lease carries a hint.
func SetRetryAfter(w http.ResponseWriter, lease Lease) {
	if secs, ok := lease.RetryAfterSeconds(); ok {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}
