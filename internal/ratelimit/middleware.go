package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"ratelimiter/internal/auth"
	"ratelimiter/internal/models"
)

// Decision describes one admission outcome. It is passed to every Observer.
type Decision struct {
	Partition PartitionKey
	Algorithm Algorithm
	Route     string
	Identity  models.Identity
	Lease     Lease
}

// Observer is notified of every admission decision. Implementations must not
// block for long; they run on the request path.
type Observer interface {
	ObserveDecision(ctx context.Context, d Decision)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, d Decision)

func (f ObserverFunc) ObserveDecision(ctx context.Context, d Decision) {
	f(ctx, d)
}

type middleware struct {
	store     *PartitionStore
	policy    Policy
	exempt    func(*http.Request) bool
	reporter  Reporter
	observers []Observer
	route     func(*http.Request) string
	identity  func(*http.Request) models.Identity
	rejectLog *rate.Sometimes
}

// Option configures Middleware.
type Option func(*middleware)

// Exempt skips limiting for requests matching pred. It runs before the
// identity is classified.
func Exempt(pred func(*http.Request) bool) Option {
	return func(m *middleware) {
		m.exempt = pred
	}
}

// WithReporter replaces the default JSON 429 response.
func WithReporter(rep Reporter) Option {
	return func(m *middleware) {
		m.reporter = rep
	}
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(obs Observer) Option {
	return func(m *middleware) {
		if obs != nil {
			m.observers = append(m.observers, obs)
		}
	}
}

// WithRouteName sets how requests are labelled in decisions. The default is
// the URL path.
func WithRouteName(fn func(*http.Request) string) Option {
	return func(m *middleware) {
		m.route = fn
	}
}

// WithIdentity overrides where the caller identity comes from. The default
// reads the identity attached by the auth middleware.
func WithIdentity(fn func(*http.Request) models.Identity) Option {
	return func(m *middleware) {
		m.identity = fn
	}
}

// Middleware returns HTTP middleware that admits or rejects each request
// against the limiter of its partition. Admitted requests are forwarded
// unchanged apart from the X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset headers. Rejected requests are handed to the Reporter.
func Middleware(store *PartitionStore, policy Policy, opts ...Option) func(http.Handler) http.Handler {
	m := &middleware{
		store:    store,
		policy:   policy,
		exempt:   func(*http.Request) bool { return false },
		reporter: JSONReporter{},
		route:    func(r *http.Request) string { return r.URL.Path },
		identity: func(r *http.Request) models.Identity {
			return auth.IdentityFromContext(r.Context())
		},
		// A flood of 429s logs the first few, then one every few seconds.
		rejectLog: &rate.Sometimes{First: 5, Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m.wrap
}

func (m *middleware) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		id := m.identity(r)
		key, cfg := m.policy.Classify(id)

		limiter, err := m.store.GetOrCreate(key, cfg)
		if err != nil {
			slog.Error("Failed to build rate limiter",
				"partition", string(key),
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "Rate limiter unavailable", models.ErrorCodeRateLimiterError)
			return
		}

		lease := limiter.Acquire(r.Context(), 1)

		d := Decision{
			Partition: key,
			Algorithm: limiter.Algorithm(),
			Route:     m.route(r),
			Identity:  id,
			Lease:     lease,
		}
		for _, obs := range m.observers {
			obs.ObserveDecision(r.Context(), d)
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(lease.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(lease.Remaining))
		if !lease.ResetAt.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(lease.ResetAt.Unix(), 10))
		}

		if !lease.Granted {
			m.rejectLog.Do(func() {
				secs, _ := lease.RetryAfterSeconds()
				slog.Warn("Rate limit exceeded",
					"partition", string(key),
					"algorithm", string(d.Algorithm),
					"route", d.Route,
					"limit", lease.Limit,
					"retry_after", secs,
				)
			})
			m.reporter.Reject(w, r, lease)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.NewErrorResponse(message, code))
}
