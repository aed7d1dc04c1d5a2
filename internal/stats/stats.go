// Package stats keeps running counts of rate-limit decisions. Recording is
// best-effort: a failing backend never changes the outcome of a request.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	fieldAdmitted = "admitted"
	fieldRejected = "rejected"
)

// Event is one admission decision.
type Event struct {
	Partition string
	Route     string
	Granted   bool
	At        time.Time
}

func (ev Event) field() string {
	if ev.Granted {
		return fieldAdmitted
	}
	return fieldRejected
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total      models.DecisionCounts
	Routes     map[string]models.DecisionCounts
	Partitions map[string]models.DecisionCounts
	Backend    string
}

// Response converts the snapshot into its API representation.
func (s Snapshot) Response(now time.Time) *models.StatsResponse {
	return &models.StatsResponse{
		Admitted:   s.Total.Admitted,
		Rejected:   s.Total.Rejected,
		Routes:     s.Routes,
		Partitions: s.Partitions,
		Backend:    s.Backend,
		Timestamp:  now,
	}
}

// Recorder persists decision counters.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	Snapshot(ctx context.Context) (Snapshot, error)
	Close() error
}

// New builds the recorder selected by cfg. It returns nil when statistics
// are disabled.
func New(ctx context.Context, cfg models.StatsConfig) (Recorder, error) {
	switch cfg.Type {
	case models.StatsTypeNone, "":
		return nil, nil
	case models.StatsTypeMemory:
		return NewMemoryRecorder(WithTrackPartitions(cfg.TrackPartitions)), nil
	case models.StatsTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			// Record bounds each write with its own deadline.
			ContextTimeoutEnabled: true,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}

		return NewRedisRecorder(client,
			WithKeyPrefix(cfg.KeyPrefix),
			WithTTL(cfg.TTL),
			WithTrackPartitions(cfg.TrackPartitions),
			WithWriteTimeout(cfg.Redis.WriteTimeout),
		), nil
	default:
		return nil, fmt.Errorf("unsupported stats type: %s", cfg.Type)
	}
}

// NewObserver adapts rec to the rate limiter's observer hook. A nil rec
// yields a nil observer, which the middleware ignores.
func NewObserver(rec Recorder) ratelimit.Observer {
	if rec == nil {
		return nil
	}
	return ratelimit.ObserverFunc(func(ctx context.Context, d ratelimit.Decision) {
		ev := Event{
			Partition: string(d.Partition),
			Route:     d.Route,
			Granted:   d.Lease.Granted,
			At:        time.Now(),
		}
		if err := rec.Record(ctx, ev); err != nil {
			slog.Debug("Failed to record rate limit decision", "partition", ev.Partition, "error", err)
		}
	})
}
