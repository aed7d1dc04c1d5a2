package stats

import (
	"context"
	"fmt"
	"ratelimiter/internal/models"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix    = "ratelimit:stats"
	defaultWriteTimeout = 100 * time.Millisecond
)

// WithKeyPrefix sets the prefix of every Redis key.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if p := strings.Trim(prefix, ":"); p != "" {
			o.prefix = p
		}
	}
}

// WithTTL expires per-partition counters. The totals are cumulative and
// never expire.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithWriteTimeout bounds each Record call. Recording runs on the request
// path, so a stalled Redis costs at most d per request. Zero or negative
// leaves the caller's context as the only bound.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// RedisRecorder keeps counters in Redis hashes so several instances share
// them:
//
//	<prefix>:total              admitted|rejected
//	<prefix>:route              <route>:admitted|<route>:rejected
//	<prefix>:partition:<key>    admitted|rejected (expires after ttl)
//	<prefix>:partitions         set of tracked partition keys
type RedisRecorder struct {
	rdb *redis.Client
	options
}

func NewRedisRecorder(rdb *redis.Client, opts ...Option) *RedisRecorder {
	r := &RedisRecorder{
		rdb:     rdb,
		options: options{prefix: defaultKeyPrefix, ttl: 24 * time.Hour, writeTimeout: defaultWriteTimeout},
	}
	for _, opt := range opts {
		opt(&r.options)
	}
	return r
}

func (r *RedisRecorder) key(parts ...string) string {
	return r.prefix + ":" + strings.Join(parts, ":")
}

// Record increments the counters in a single pipeline. The client must have
// ContextTimeoutEnabled for the write timeout to cut a stalled round trip.
func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.writeTimeout)
		defer cancel()
	}
	field := ev.field()

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.key("total"), field, 1)

	if route := strings.TrimSpace(ev.Route); route != "" {
		pipe.HIncrBy(ctx, r.key("route"), route+":"+field, 1)
	}

	if r.trackPartitions && ev.Partition != "" {
		partitionKey := r.key("partition", ev.Partition)
		pipe.HIncrBy(ctx, partitionKey, field, 1)
		pipe.SAdd(ctx, r.key("partitions"), ev.Partition)
		if r.ttl > 0 {
			pipe.Expire(ctx, partitionKey, r.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

func (r *RedisRecorder) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Routes:     make(map[string]models.DecisionCounts),
		Partitions: make(map[string]models.DecisionCounts),
		Backend:    BackendRedis,
	}

	total, err := r.rdb.HGetAll(ctx, r.key("total")).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read totals: %w", err)
	}
	snap.Total = countsFromHash(total)

	routes, err := r.rdb.HGetAll(ctx, r.key("route")).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read route counters: %w", err)
	}
	for field, raw := range routes {
		i := strings.LastIndex(field, ":")
		if i <= 0 {
			continue
		}
		c := snap.Routes[field[:i]]
		setCount(&c, field[i+1:], raw)
		snap.Routes[field[:i]] = c
	}

	if !r.trackPartitions {
		return snap, nil
	}

	members, err := r.rdb.SMembers(ctx, r.key("partitions")).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list partitions: %w", err)
	}
	pipe := r.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(members))
	for _, p := range members {
		cmds[p] = pipe.HGetAll(ctx, r.key("partition", p))
	}
	if len(cmds) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return Snapshot{}, fmt.Errorf("failed to read partition counters: %w", err)
		}
	}

	var expired []any
	for p, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			expired = append(expired, p)
			continue
		}
		snap.Partitions[p] = countsFromHash(h)
	}
	if len(expired) > 0 {
		// Best-effort cleanup of partitions whose counters have expired.
		r.rdb.SRem(ctx, r.key("partitions"), expired...)
	}

	return snap, nil
}

func (r *RedisRecorder) Close() error {
	return r.rdb.Close()
}

func countsFromHash(h map[string]string) models.DecisionCounts {
	var c models.DecisionCounts
	for field, raw := range h {
		setCount(&c, field, raw)
	}
	return c
}

func setCount(c *models.DecisionCounts, field, raw string) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	switch field {
	case fieldAdmitted:
		c.Admitted = n
	case fieldRejected:
		c.Rejected = n
	}
}
