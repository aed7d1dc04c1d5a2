package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"ratelimiter/internal/api"
	"ratelimiter/internal/auth"
	"ratelimiter/internal/config"
	"ratelimiter/internal/logger"
	"ratelimiter/internal/models"
	"ratelimiter/internal/observability"
	"ratelimiter/internal/ratelimit"
	"ratelimiter/internal/stats"
	"ratelimiter/internal/storage"
	"ratelimiter/internal/version"
	"syscall"
	"time"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file")
	writeExample = flag.String("write-example", "", "Write an example configuration to the given path and exit")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver.String())
		return
	}
	if *writeExample != "" {
		if err := config.SaveExample(*writeExample); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", *writeExample)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	if err := run(cfg, ver); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *models.Config, ver version.Info) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(ctx, cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	store, err := initializeStorage(ctx, cfg, otelProvider)
	if err != nil {
		return err
	}
	defer store.Close()

	tokens, err := auth.NewTokenIssuer(cfg.Security.JWT)
	if err != nil {
		return fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	recorder, err := stats.New(ctx, cfg.Stats)
	if err != nil {
		return fmt.Errorf("failed to initialize stats: %w", err)
	}
	if recorder != nil {
		defer recorder.Close()
	}

	services := api.Services{
		Storage:  store,
		Tokens:   tokens,
		Recorder: recorder,
		Version:  ver,
	}
	if obs := stats.NewObserver(recorder); obs != nil {
		services.Observers = append(services.Observers, obs)
	}

	// Initialize rate limiter if enabled
	if cfg.RateLimit.Enabled {
		policy, err := ratelimit.NewTieredPolicy(cfg.RateLimit)
		if err != nil {
			return fmt.Errorf("failed to build rate limit policy: %w", err)
		}
		partitions := ratelimit.NewPartitionStore(ratelimit.WithIdleTTL(cfg.RateLimit.IdleTTL))
		defer partitions.Close()

		services.Policy = policy
		services.Partitions = partitions

		if otelProvider.MetricsEnabled() {
			rlMetrics, err := observability.NewRateLimitMetrics(partitions)
			if err != nil {
				return fmt.Errorf("failed to create rate limit metrics: %w", err)
			}
			services.Observers = append(services.Observers, rlMetrics)
		}
		slog.Info("Rate limiting enabled",
			"anonymous_token_limit", cfg.RateLimit.Anonymous.TokenLimit,
			"queue_limit", cfg.RateLimit.Authenticated.QueueLimit,
			"idle_ttl", cfg.RateLimit.IdleTTL)
	} else {
		slog.Warn("Rate limiting is disabled")
	}

	handlers := api.NewHandlers(services)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if otelProvider.TracingEnabled() {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if otelProvider.MetricsEnabled() {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "tls", cfg.Server.TLSEnabled)

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// initializeStorage opens the configured account store, instruments it when
// telemetry is enabled and inserts the configured seed accounts.
func initializeStorage(ctx context.Context, cfg *models.Config, provider *observability.Provider) (storage.Storage, error) {
	var wrap func(storage.Storage) (storage.Storage, error)
	if provider.MetricsEnabled() || provider.TracingEnabled() {
		wrap = func(base storage.Storage) (storage.Storage, error) {
			return observability.NewInstrumentedStorage(base)
		}
	}

	store, err := storage.NewFactory().Open(ctx, cfg.Storage, wrap)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}
