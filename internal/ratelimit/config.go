package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"ratelimiter/internal/clock"
)

// Configuration errors. Validate wraps one of these so callers can use
// errors.Is.
var (
	ErrInvalidPermitLimit         = errors.New("permit limit cannot be negative")
	ErrInvalidWindow              = errors.New("window must be positive")
	ErrInvalidQueueLimit          = errors.New("queue limit cannot be negative")
	ErrInvalidQueueOrder          = errors.New("unknown queue order")
	ErrInvalidTokenLimit          = errors.New("token limit cannot be negative")
	ErrInvalidReplenishmentPeriod = errors.New("replenishment period must be positive")
	ErrInvalidTokensPerPeriod     = errors.New("tokens per period must be positive")
)

// LimiterConfig describes how to build the limiter of a partition. The
// variants are FixedWindowConfig and TokenBucketConfig.
type LimiterConfig interface {
	Validate() error
	Algorithm() Algorithm
	build(c clock.Clock) Limiter
}

// QueueOrder selects which queued caller is served first when permits free up.
type QueueOrder int

const (
	OldestFirst QueueOrder = iota
	NewestFirst
)

func (o QueueOrder) String() string {
	switch o {
	case OldestFirst:
		return "oldest_first"
	case NewestFirst:
		return "newest_first"
	default:
		return fmt.Sprintf("QueueOrder(%d)", int(o))
	}
}

// ParseQueueOrder accepts the configuration spellings oldest_first and
// newest_first. The empty string means oldest_first.
func ParseQueueOrder(s string) (QueueOrder, error) {
	switch s {
	case "", "oldest_first":
		return OldestFirst, nil
	case "newest_first":
		return NewestFirst, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidQueueOrder, s)
	}
}

// FixedWindowConfig admits PermitLimit permits per Window. With QueueLimit > 0,
// up to QueueLimit permits worth of callers may wait for the next window.
type FixedWindowConfig struct {
	PermitLimit int
	Window      time.Duration
	QueueLimit  int
	QueueOrder  QueueOrder
}

func (c FixedWindowConfig) Validate() error {
	if c.PermitLimit < 0 {
		return fmt.Errorf("fixed window: %w (got %d)", ErrInvalidPermitLimit, c.PermitLimit)
	}
	if c.Window <= 0 {
		return fmt.Errorf("fixed window: %w (got %s)", ErrInvalidWindow, c.Window)
	}
	if c.QueueLimit < 0 {
		return fmt.Errorf("fixed window: %w (got %d)", ErrInvalidQueueLimit, c.QueueLimit)
	}
	if c.QueueOrder != OldestFirst && c.QueueOrder != NewestFirst {
		return fmt.Errorf("fixed window: %w: %s", ErrInvalidQueueOrder, c.QueueOrder)
	}
	return nil
}

func (FixedWindowConfig) Algorithm() Algorithm { return AlgorithmFixedWindow }

func (c FixedWindowConfig) build(clk clock.Clock) Limiter {
	return newFixedWindow(c, clk)
}

// TokenBucketConfig holds at most TokenLimit tokens and adds TokensPerPeriod
// tokens for every whole ReplenishmentPeriod that elapses.
type TokenBucketConfig struct {
	TokenLimit          int
	ReplenishmentPeriod time.Duration
	TokensPerPeriod     int
}

func (c TokenBucketConfig) Validate() error {
	if c.TokenLimit < 0 {
		return fmt.Errorf("token bucket: %w (got %d)", ErrInvalidTokenLimit, c.TokenLimit)
	}
	if c.ReplenishmentPeriod <= 0 {
		return fmt.Errorf("token bucket: %w (got %s)", ErrInvalidReplenishmentPeriod, c.ReplenishmentPeriod)
	}
	if c.TokensPerPeriod <= 0 {
		return fmt.Errorf("token bucket: %w (got %d)", ErrInvalidTokensPerPeriod, c.TokensPerPeriod)
	}
	return nil
}

func (TokenBucketConfig) Algorithm() Algorithm { return AlgorithmTokenBucket }

func (c TokenBucketConfig) build(clk clock.Clock) Limiter {
	return newTokenBucket(c, clk)
}

// NewLimiter validates cfg and builds a standalone limiter.
func NewLimiter(cfg LimiterConfig, clk clock.Clock) (Limiter, error) {
	if cfg == nil {
		return nil, errors.New("limiter config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return cfg.build(clk), nil
}
