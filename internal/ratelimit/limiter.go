// Package ratelimit provides per-identity admission control for HTTP requests.
// Callers are split into partitions, each owning an independent limiter: a
// fixed window (optionally queueing) for authenticated callers and a shared
// token bucket for anonymous ones. The middleware sets standard rate limit
// headers and answers rejected requests with 429 and Retry-After.
package ratelimit

import (
	"context"
	"time"
)

// PartitionKey identifies an independent slice of limiter state. Keys are
// opaque and case-sensitive.
type PartitionKey string

// Algorithm names the strategy behind a limiter.
type Algorithm string

const (
	AlgorithmFixedWindow Algorithm = "fixed_window"
	AlgorithmTokenBucket Algorithm = "token_bucket"
)

// Limiter defines the admission contract. Implementations must be safe for
// concurrent use. A denial is a normal outcome reported through the Lease,
// never an error.
type Limiter interface {
	// TryAcquire never blocks.
	TryAcquire(permits int) Lease

	// Acquire may wait for capacity when the limiter supports queueing. The
	// wait ends early, with a denial, when ctx is done.
	Acquire(ctx context.Context, permits int) Lease

	Algorithm() Algorithm
}

// Lease is the result of one acquisition attempt.
type Lease struct {
	Granted   bool
	Limit     int // Configured capacity of the partition
	Remaining int // Permits or tokens left after this attempt

	// RetryAfter is meaningful only when HasRetryAfter is set. A denial
	// that waiting cannot fix carries no hint.
	RetryAfter    time.Duration
	HasRetryAfter bool

	// ResetAt is when the partition is back at full capacity. Zero when
	// the limiter cannot tell.
	ResetAt time.Time
}

// RetryAfterHint returns the suggested wait before retrying.
func (l Lease) RetryAfterHint() (time.Duration, bool) {
	return l.RetryAfter, l.HasRetryAfter
}

// RetryAfterSeconds rounds the hint up to whole seconds, never negative.
func (l Lease) RetryAfterSeconds() (int, bool) {
	if !l.HasRetryAfter {
		return 0, false
	}
	if l.RetryAfter <= 0 {
		return 0, true
	}
	secs := l.RetryAfter / time.Second
	if l.RetryAfter%time.Second != 0 {
		secs++
	}
	return int(secs), true
}

func granted(limit, remaining int) Lease {
	return Lease{Granted: true, Limit: limit, Remaining: remaining}
}

func denied(limit, remaining int) Lease {
	return Lease{Limit: limit, Remaining: remaining}
}

func deniedRetry(limit, remaining int, after time.Duration) Lease {
	if after < 0 {
		after = 0
	}
	return Lease{Limit: limit, Remaining: remaining, RetryAfter: after, HasRetryAfter: true}
}
