package api

import (
	"encoding/json"
	"net/http"
	"ratelimiter/internal/auth"
	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// Route names. Rate limiting, logging and stats refer to routes by name.
const (
	RouteLogin    = "login"
	RoutePing     = "ping"
	RouteSample   = "sample"
	RouteIdentity = "identity"
	RouteStats    = "stats"
	RouteHealth   = "health"
)

// exemptRoutes are never rate limited.
var exemptRoutes = map[string]bool{
	RouteLogin:  true,
	RouteHealth: true,
}

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return routeName(r) != RouteHealth
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the API. Middleware runs in
// registration order: recovery, logging, the route options, authentication
// and finally the rate limiter.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	router.Use(recoveryMiddleware)
	router.Use(loggingMiddleware)
	for _, opt := range opts {
		opt(router)
	}

	router.Use(auth.Middleware(handlers.Storage, handlers.Tokens, config.Security.APIKeyHeader))
	if config.RateLimit.Enabled && handlers.Partitions != nil {
		router.Use(handlers.rateLimitMiddleware())
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", handlers.Login).Methods("POST").Name(RouteLogin)
	api.HandleFunc("/ping", handlers.Ping).Methods("GET").Name(RoutePing)
	api.HandleFunc("/sample", handlers.Sample).Methods("GET").Name(RouteSample)
	api.HandleFunc("/identity", handlers.Identity).Methods("GET").Name(RouteIdentity)
	api.HandleFunc("/stats", handlers.Stats).Methods("GET").Name(RouteStats)

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET").Name(RouteHealth)

	// A subrouter answers unmatched requests under its prefix itself, so both
	// routers need the JSON error handlers.
	for _, r := range []*mux.Router{router, api} {
		r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
		r.NotFoundHandler = http.HandlerFunc(notFoundHandler)
	}

	return router
}

func (h *Handlers) rateLimitMiddleware() mux.MiddlewareFunc {
	opts := []ratelimit.Option{
		ratelimit.Exempt(func(r *http.Request) bool {
			return exemptRoutes[routeName(r)]
		}),
		ratelimit.WithRouteName(routeName),
	}
	for _, obs := range h.Observers {
		opts = append(opts, ratelimit.WithObserver(obs))
	}
	return ratelimit.Middleware(h.Partitions, h.Policy, opts...)
}

// routeName returns the name of the matched route, or "" outside the router.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		return route.GetName()
	}
	return ""
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	errorResp := models.NewErrorResponse("Method not allowed", models.ErrorCodeBadRequest)
	json.NewEncoder(w).Encode(errorResp)
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	errorResp := models.NewErrorResponse("Not found", models.ErrorCodeNotFound)
	json.NewEncoder(w).Encode(errorResp)
}
