package ratelimit

import (
	"time"

	"ratelimiter/internal/models"
)

// Partition keys used by TieredPolicy.
const (
	DefaultPartition PartitionKey = "Default"
	SharedPartition  PartitionKey = "Shared"
)

// Policy maps a caller identity to its partition and limiter configuration.
// It must be pure: the same identity always yields the same result.
type Policy interface {
	Classify(id models.Identity) (PartitionKey, LimiterConfig)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(id models.Identity) (PartitionKey, LimiterConfig)

func (f PolicyFunc) Classify(id models.Identity) (PartitionKey, LimiterConfig) {
	return f(id)
}

// TieredPolicy gives every authenticated caller a fixed window sized by its
// subscription and makes all anonymous callers share one token bucket.
type TieredPolicy struct {
	QueueLimit int
	QueueOrder QueueOrder
	Anonymous  TokenBucketConfig
}

// DefaultAnonymousConfig is the shared bucket used for unauthenticated callers.
var DefaultAnonymousConfig = TokenBucketConfig{
	TokenLimit:          100,
	ReplenishmentPeriod: time.Minute,
	TokensPerPeriod:     10,
}

// NewTieredPolicy builds the policy from configuration and validates the
// static parts, so a bad anonymous tier fails at startup.
func NewTieredPolicy(cfg models.RateLimitConfig) (*TieredPolicy, error) {
	order, err := ParseQueueOrder(cfg.Authenticated.QueueOrder)
	if err != nil {
		return nil, err
	}
	p := &TieredPolicy{
		QueueLimit: cfg.Authenticated.QueueLimit,
		QueueOrder: order,
		Anonymous: TokenBucketConfig{
			TokenLimit:          cfg.Anonymous.TokenLimit,
			ReplenishmentPeriod: cfg.Anonymous.ReplenishmentPeriod,
			TokensPerPeriod:     cfg.Anonymous.TokensPerPeriod,
		},
	}
	if err := p.Anonymous.Validate(); err != nil {
		return nil, err
	}
	sample := FixedWindowConfig{PermitLimit: 1, Window: time.Minute, QueueLimit: p.QueueLimit, QueueOrder: p.QueueOrder}
	if err := sample.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DefaultTieredPolicy returns the policy with queueing disabled and the
// default anonymous bucket.
func DefaultTieredPolicy() *TieredPolicy {
	return &TieredPolicy{QueueOrder: OldestFirst, Anonymous: DefaultAnonymousConfig}
}

func (p *TieredPolicy) Classify(id models.Identity) (PartitionKey, LimiterConfig) {
	if !id.Authenticated {
		return SharedPartition, p.Anonymous
	}

	key := PartitionKey(id.Name)
	if key == "" {
		key = DefaultPartition
	}
	permits := id.PermitLimit
	if permits <= 0 {
		permits = models.DefaultPermitLimit
	}
	minutes := id.WindowMinutes
	if minutes <= 0 {
		minutes = models.DefaultWindowMinutes
	}
	return key, FixedWindowConfig{
		PermitLimit: permits,
		Window:      time.Duration(minutes) * time.Minute,
		QueueLimit:  p.QueueLimit,
		QueueOrder:  p.QueueOrder,
	}
}
