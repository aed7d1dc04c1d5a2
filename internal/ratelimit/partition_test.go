package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratelimiter/internal/clock"
)

var minuteWindow = FixedWindowConfig{PermitLimit: 2, Window: time.Minute}

func TestPartitionStore_ReturnsSameLimiterForKey(t *testing.T) {
	s := NewPartitionStore(WithClock(clock.NewManual(epoch)))
	defer s.Close()

	a, err := s.GetOrCreate("alice", minuteWindow)
	require.NoError(t, err)
	b, err := s.GetOrCreate("alice", FixedWindowConfig{PermitLimit: 50, Window: time.Hour})
	require.NoError(t, err)

	assert.Same(t, a, b, "config is ignored once the partition exists")
	assert.Equal(t, 1, s.Len())
}

func TestPartitionStore_PartitionsAreIsolated(t *testing.T) {
	s := NewPartitionStore(WithClock(clock.NewManual(epoch)))
	defer s.Close()

	alice, err := s.GetOrCreate("alice", minuteWindow)
	require.NoError(t, err)
	require.Equal(t, 2, drain(alice))

	bob, err := s.GetOrCreate("bob", minuteWindow)
	require.NoError(t, err)
	assert.Equal(t, 2, drain(bob))

	// Keys are case-sensitive.
	upper, err := s.GetOrCreate("Alice", minuteWindow)
	require.NoError(t, err)
	assert.True(t, upper.TryAcquire(1).Granted)
	assert.Equal(t, 3, s.Len())
}

func TestPartitionStore_ConcurrentFirstAccess(t *testing.T) {
	s := NewPartitionStore(WithClock(clock.NewManual(epoch)))
	defer s.Close()

	const workers = 64
	limiters := make([]Limiter, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			l, err := s.GetOrCreate("shared", FixedWindowConfig{PermitLimit: 10, Window: time.Minute})
			assert.NoError(t, err)
			limiters[i] = l
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, limiters[0], limiters[i])
	}
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 10, drain(limiters[0]))
}

func TestPartitionStore_ManyKeysConcurrently(t *testing.T) {
	s := NewPartitionStore(WithClock(clock.NewManual(epoch)))
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := PartitionKey(fmt.Sprintf("user-%d", i%20))
			_, err := s.GetOrCreate(key, minuteWindow)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len())
}

func TestPartitionStore_InvalidConfigIsNotCached(t *testing.T) {
	s := NewPartitionStore(WithClock(clock.NewManual(epoch)))
	defer s.Close()

	_, err := s.GetOrCreate("broken", FixedWindowConfig{PermitLimit: 1, Window: 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.Contains(t, err.Error(), `partition "broken"`)
	assert.Equal(t, 0, s.Len())

	_, err = s.GetOrCreate("broken", nil)
	assert.Error(t, err)

	l, err := s.GetOrCreate("broken", minuteWindow)
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestPartitionStore_EvictIdle(t *testing.T) {
	clk := clock.NewManual(epoch)
	s := NewPartitionStore(WithClock(clk), WithIdleTTL(10*time.Minute))
	defer s.Close()

	_, err := s.GetOrCreate("idle", minuteWindow)
	require.NoError(t, err)
	_, err = s.GetOrCreate("busy", minuteWindow)
	require.NoError(t, err)

	clk.Advance(6 * time.Minute)
	_, err = s.GetOrCreate("busy", minuteWindow)
	require.NoError(t, err)

	clk.Advance(5 * time.Minute)
	assert.Equal(t, 1, s.evictIdle())
	assert.Equal(t, 1, s.Len())

	clk.Advance(11 * time.Minute)
	assert.Equal(t, 1, s.evictIdle())
	assert.Equal(t, 0, s.Len())
}

func TestPartitionStore_EvictIdleKeepsQueuedLimiters(t *testing.T) {
	clk := clock.NewManual(epoch)
	s := NewPartitionStore(WithClock(clk), WithIdleTTL(time.Minute))
	defer s.Close()

	l, err := s.GetOrCreate("queued", FixedWindowConfig{PermitLimit: 1, Window: time.Hour, QueueLimit: 1})
	require.NoError(t, err)
	require.True(t, l.TryAcquire(1).Granted)

	fw := l.(*FixedWindowLimiter)
	ch := acquireAsync(context.Background(), fw)
	waitQueued(t, fw, 1)

	clk.Set(epoch.Add(2 * time.Minute))
	assert.Equal(t, 0, s.evictIdle())
	assert.Equal(t, 1, s.Len())

	clk.Advance(time.Hour)
	assert.True(t, receive(t, ch).Granted)
	assert.Equal(t, 0, s.evictIdle(), "the waiter spent the new window's permit")

	clk.Advance(time.Hour)
	assert.Equal(t, 1, s.evictIdle())
}

func TestPartitionStore_EvictIdleKeepsDepletedWindow(t *testing.T) {
	clk := clock.NewManual(epoch)
	s := NewPartitionStore(WithClock(clk), WithIdleTTL(time.Minute))
	defer s.Close()

	cfg := FixedWindowConfig{PermitLimit: 5, Window: time.Hour}
	l, err := s.GetOrCreate("alice", cfg)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.True(t, l.TryAcquire(1).Granted)
	}

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 0, s.evictIdle())

	again, err := s.GetOrCreate("alice", cfg)
	require.NoError(t, err)
	assert.Same(t, l, again)

	admitted := 0
	for i := 0; i < 5; i++ {
		if again.TryAcquire(1).Granted {
			admitted++
		}
	}
	assert.Zero(t, admitted, "pausing must not reset the window")

	clk.Advance(time.Hour)
	assert.Equal(t, 1, s.evictIdle())
}

func TestPartitionStore_EvictIdleKeepsRefillingBucket(t *testing.T) {
	clk := clock.NewManual(epoch)
	s := NewPartitionStore(WithClock(clk), WithIdleTTL(time.Minute))
	defer s.Close()

	cfg := TokenBucketConfig{TokenLimit: 100, ReplenishmentPeriod: time.Minute, TokensPerPeriod: 10}
	l, err := s.GetOrCreate(SharedPartition, cfg)
	require.NoError(t, err)
	require.True(t, l.TryAcquire(100).Granted)

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 0, s.evictIdle())

	again, err := s.GetOrCreate(SharedPartition, cfg)
	require.NoError(t, err)
	assert.Same(t, l, again)
	assert.True(t, again.TryAcquire(20).Granted)
	assert.False(t, again.TryAcquire(1).Granted)

	// Ten periods refill the bucket completely.
	clk.Advance(10 * time.Minute)
	assert.Equal(t, 1, s.evictIdle())
}

func TestLimiterIdle(t *testing.T) {
	t.Run("fixed window", func(t *testing.T) {
		clk := clock.NewManual(epoch)
		fw := newFixedWindow(FixedWindowConfig{PermitLimit: 2, Window: time.Minute}, clk)
		assert.True(t, fw.idle(clk.Now()), "untouched")

		require.True(t, fw.TryAcquire(1).Granted)
		assert.False(t, fw.idle(clk.Now()))
		assert.False(t, fw.idle(epoch.Add(59*time.Second)))
		assert.True(t, fw.idle(epoch.Add(time.Minute)))
	})

	t.Run("token bucket", func(t *testing.T) {
		clk := clock.NewManual(epoch)
		tb := newTokenBucket(TokenBucketConfig{TokenLimit: 10, ReplenishmentPeriod: time.Second, TokensPerPeriod: 3}, clk)
		assert.True(t, tb.idle(clk.Now()), "full")

		require.True(t, tb.TryAcquire(7).Granted)
		assert.False(t, tb.idle(epoch.Add(2*time.Second)), "6 of 7 tokens back")
		assert.True(t, tb.idle(epoch.Add(3*time.Second)))
		assert.Equal(t, 3, tb.tokens, "idle must not refill")
	})
}

func TestPartitionStore_JanitorEvicts(t *testing.T) {
	s := NewPartitionStore(WithIdleTTL(20 * time.Millisecond))
	defer s.Close()

	_, err := s.GetOrCreate("ephemeral", minuteWindow)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPartitionStore_Close(t *testing.T) {
	s := NewPartitionStore(WithClock(clock.NewManual(epoch)), WithIdleTTL(time.Minute))

	l, err := s.GetOrCreate("alice", minuteWindow)
	require.NoError(t, err)

	s.Close()
	s.Close() // idempotent

	_, err = s.GetOrCreate("bob", minuteWindow)
	assert.ErrorIs(t, err, ErrStoreClosed)

	// Existing partitions keep answering.
	again, err := s.GetOrCreate("alice", minuteWindow)
	require.NoError(t, err)
	assert.Same(t, l, again)
}
