package ratelimit

import (
	"context"
	"sync"
	"time"

	"ratelimiter/internal/clock"
)

// TokenBucketLimiter starts full and refills lazily: every whole
// ReplenishmentPeriod since the last refill adds TokensPerPeriod tokens, up
// to TokenLimit. Partial periods carry over to the next call, so repeated
// short waits never leak fractional tokens.
type TokenBucketLimiter struct {
	cfg   TokenBucketConfig
	clock clock.Clock

	mu     sync.Mutex
	tokens int
	last   time.Time
}

func newTokenBucket(cfg TokenBucketConfig, clk clock.Clock) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		cfg:    cfg,
		clock:  clk,
		tokens: cfg.TokenLimit,
		last:   clk.Now(),
	}
}

func (b *TokenBucketLimiter) Algorithm() Algorithm { return AlgorithmTokenBucket }

func (b *TokenBucketLimiter) TryAcquire(cost int) (lease Lease) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.replenish(now)
	defer func() { lease.ResetAt = b.fullAt(now) }()

	limit := b.cfg.TokenLimit
	if cost < 0 {
		cost = 0
	}
	if limit == 0 || cost > limit {
		return denied(limit, b.tokens)
	}
	if cost == 0 {
		if b.tokens > 0 {
			return granted(limit, b.tokens)
		}
		return b.deny(1, now)
	}
	if b.tokens >= cost {
		b.tokens -= cost
		return granted(limit, b.tokens)
	}
	return b.deny(cost, now)
}

// Acquire never waits; ctx is accepted to satisfy Limiter.
func (b *TokenBucketLimiter) Acquire(_ context.Context, cost int) Lease {
	return b.TryAcquire(cost)
}

// deny reports the exact instant enough tokens will have accrued: the number
// of whole periods covering the deficit, minus the part of the current
// period that has already elapsed.
func (b *TokenBucketLimiter) deny(cost int, now time.Time) Lease {
	deficit := cost - b.tokens
	periods := (deficit + b.cfg.TokensPerPeriod - 1) / b.cfg.TokensPerPeriod
	wait := time.Duration(periods)*b.cfg.ReplenishmentPeriod - now.Sub(b.last)
	return deniedRetry(b.cfg.TokenLimit, b.tokens, wait)
}

// fullAt returns when the bucket will next hold TokenLimit tokens.
func (b *TokenBucketLimiter) fullAt(now time.Time) time.Time {
	missing := b.cfg.TokenLimit - b.tokens
	if missing <= 0 {
		return now
	}
	periods := (missing + b.cfg.TokensPerPeriod - 1) / b.cfg.TokensPerPeriod
	return b.last.Add(time.Duration(periods) * b.cfg.ReplenishmentPeriod)
}

// idle reports whether the bucket is full, or would be after refilling at now.
func (b *TokenBucketLimiter) idle(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	missing := b.cfg.TokenLimit - b.tokens
	if missing <= 0 {
		return true
	}
	periods := int64(now.Sub(b.last) / b.cfg.ReplenishmentPeriod)
	needed := int64((missing + b.cfg.TokensPerPeriod - 1) / b.cfg.TokensPerPeriod)
	return periods >= needed
}

func (b *TokenBucketLimiter) replenish(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed < b.cfg.ReplenishmentPeriod {
		return
	}
	periods := int64(elapsed / b.cfg.ReplenishmentPeriod)
	b.last = b.last.Add(time.Duration(periods) * b.cfg.ReplenishmentPeriod)

	missing := b.cfg.TokenLimit - b.tokens
	if missing <= 0 {
		return
	}
	needed := int64((missing + b.cfg.TokensPerPeriod - 1) / b.cfg.TokensPerPeriod)
	if periods >= needed {
		b.tokens = b.cfg.TokenLimit
		return
	}
	b.tokens = min(b.cfg.TokenLimit, b.tokens+int(periods)*b.cfg.TokensPerPeriod)
}
