package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ratelimiter/internal/clock"
)

// ErrStoreClosed is returned by GetOrCreate after Close.
var ErrStoreClosed = errors.New("partition store is closed")

// partition holds a limiter and its last access time for idle eviction.
type partition struct {
	limiter  Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

func (p *partition) touch(now time.Time) {
	p.lastSeen.Store(now.UnixNano())
}

// PartitionStore maps partition keys to limiters. A limiter is constructed at
// most once per key, even under concurrent first access, and partitions are
// retained for the life of the store unless an idle TTL is configured.
type PartitionStore struct {
	clock   clock.Clock
	idleTTL time.Duration

	mu         sync.RWMutex
	partitions map[PartitionKey]*partition
	done       chan struct{}
	closed     bool
}

// StoreOption configures a PartitionStore.
type StoreOption func(*PartitionStore)

// WithClock sets the time source handed to every limiter the store builds.
func WithClock(c clock.Clock) StoreOption {
	return func(s *PartitionStore) {
		s.clock = c
	}
}

// WithIdleTTL evicts partitions that have not been used for d. A background
// goroutine sweeps every d/2 until Close is called. Zero disables eviction.
func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *PartitionStore) {
		s.idleTTL = d
	}
}

func NewPartitionStore(opts ...StoreOption) *PartitionStore {
	s := &PartitionStore{
		clock:      clock.New(),
		partitions: make(map[PartitionKey]*partition),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.idleTTL > 0 {
		go s.janitor()
	}
	return s
}

// GetOrCreate returns the limiter of key, building it from cfg on first use.
// cfg is ignored once the partition exists. An invalid cfg is reported and
// nothing is stored, so a later call may succeed with a valid one.
func (s *PartitionStore) GetOrCreate(key PartitionKey, cfg LimiterConfig) (Limiter, error) {
	now := s.clock.Now()

	s.mu.RLock()
	p, ok := s.partitions[key]
	closed := s.closed
	s.mu.RUnlock()
	if ok {
		p.touch(now)
		return p.limiter, nil
	}
	if closed {
		return nil, ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if p, ok := s.partitions[key]; ok {
		p.touch(now)
		return p.limiter, nil
	}

	limiter, err := NewLimiter(cfg, s.clock)
	if err != nil {
		return nil, fmt.Errorf("partition %q: %w", key, err)
	}
	p = &partition{limiter: limiter}
	p.touch(now)
	s.partitions[key] = p

	slog.Debug("Rate limit partition created",
		"partition", string(key),
		"algorithm", string(cfg.Algorithm()),
	)
	return limiter, nil
}

// Len returns the number of live partitions.
func (s *PartitionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.partitions)
}

// Close stops the janitor. Existing limiters keep working for callers that
// already hold them.
func (s *PartitionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *PartitionStore) janitor() {
	interval := s.idleTTL / 2
	if interval <= 0 {
		interval = s.idleTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.evictIdle(); n > 0 {
				slog.Debug("Evicted idle rate limit partitions", "count", n)
			}
		}
	}
}

// evictIdle removes partitions unseen for longer than the idle TTL whose
// limiter is back at its initial state. A quiet but depleted limiter stays,
// otherwise pausing would reset its budget.
func (s *PartitionStore) evictIdle() int {
	now := s.clock.Now()
	cutoff := now.Add(-s.idleTTL).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, p := range s.partitions {
		if p.lastSeen.Load() > cutoff {
			continue
		}
		if r, ok := p.limiter.(interface{ idle(time.Time) bool }); ok && !r.idle(now) {
			continue
		}
		delete(s.partitions, key)
		evicted++
	}
	return evicted
}
