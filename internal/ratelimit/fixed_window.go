package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"

	"ratelimiter/internal/clock"
)

// FixedWindowLimiter grants up to PermitLimit permits per window. A window
// starts at the first call after the previous one expired; unused permits are
// not carried over.
//
// When queueing is enabled, callers that find the window exhausted wait for
// the next rollover. Rollover is driven by a timer so waiters are served even
// if no further request arrives. A waiter is never held longer than one
// window: those the fresh window cannot serve are denied at that rollover.
type FixedWindowLimiter struct {
	cfg   FixedWindowConfig
	clock clock.Clock

	mu          sync.Mutex
	available   int
	windowStart time.Time
	queue       *list.List // of *waiter, oldest at the front
	queued      int        // permits requested by queued waiters
	timer       clock.Timer
	timerGen    uint64
}

type waiter struct {
	permits int
	result  chan Lease // buffered; receives exactly one lease
	elem    *list.Element
}

func newFixedWindow(cfg FixedWindowConfig, clk clock.Clock) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		cfg:         cfg,
		clock:       clk,
		available:   cfg.PermitLimit,
		windowStart: clk.Now(),
		queue:       list.New(),
	}
}

func (f *FixedWindowLimiter) Algorithm() Algorithm { return AlgorithmFixedWindow }

// idle reports whether a fresh limiter would behave identically: nobody is
// waiting and either the window has expired or no permit was spent in it.
func (f *FixedWindowLimiter) idle(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queue.Len() > 0 {
		return false
	}
	return f.available == f.cfg.PermitLimit || now.Sub(f.windowStart) >= f.cfg.Window
}

// QueueLength returns the number of callers currently waiting.
func (f *FixedWindowLimiter) QueueLength() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

func (f *FixedWindowLimiter) TryAcquire(permits int) Lease {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	f.rollover(now)
	lease, _ := f.attempt(permits, now)
	return lease
}

func (f *FixedWindowLimiter) Acquire(ctx context.Context, permits int) Lease {
	f.mu.Lock()
	now := f.clock.Now()
	f.rollover(now)
	lease, final := f.attempt(permits, now)
	if final || f.cfg.QueueLimit == 0 || permits > f.cfg.QueueLimit || ctx.Err() != nil {
		f.mu.Unlock()
		return lease
	}

	if f.queued+permits > f.cfg.QueueLimit {
		if f.cfg.QueueOrder == OldestFirst {
			f.mu.Unlock()
			return lease
		}
		// Newest first: make room by bumping the oldest waiters.
		for f.queued+permits > f.cfg.QueueLimit {
			f.resolve(f.queue.Front().Value.(*waiter), f.deny(now))
		}
	}

	w := &waiter{permits: permits, result: make(chan Lease, 1)}
	w.elem = f.queue.PushBack(w)
	f.queued += permits
	f.armTimer(now)
	f.mu.Unlock()

	select {
	case l := <-w.result:
		return l
	case <-ctx.Done():
	}

	f.mu.Lock()
	if w.elem != nil {
		f.unlink(w)
		if f.queue.Len() == 0 {
			f.stopTimer()
		}
		lease := f.deny(f.clock.Now())
		f.mu.Unlock()
		return lease
	}
	f.mu.Unlock()
	// Resolved concurrently with the cancellation; the outcome stands.
	return <-w.result
}

// attempt tries an immediate grant. final reports whether queueing could not
// change the outcome.
func (f *FixedWindowLimiter) attempt(permits int, now time.Time) (lease Lease, final bool) {
	defer func() { lease = f.stamp(lease) }()

	limit := f.cfg.PermitLimit
	if permits < 0 {
		permits = 0
	}
	if limit == 0 || permits > limit {
		return denied(limit, f.available), true
	}
	if permits == 0 {
		if f.available > 0 {
			return granted(limit, f.available), true
		}
		return f.deny(now), true
	}
	if f.available >= permits && (f.cfg.QueueOrder == NewestFirst || f.queue.Len() == 0) {
		f.available -= permits
		return granted(limit, f.available), true
	}
	return f.deny(now), false
}

func (f *FixedWindowLimiter) deny(now time.Time) Lease {
	return f.stamp(deniedRetry(f.cfg.PermitLimit, f.available, f.windowStart.Add(f.cfg.Window).Sub(now)))
}

// stamp sets the end of the current window as the reset time.
func (f *FixedWindowLimiter) stamp(l Lease) Lease {
	l.ResetAt = f.windowStart.Add(f.cfg.Window)
	return l
}

// rollover starts a new window if the current one has expired and hands the
// fresh permits to queued waiters first.
func (f *FixedWindowLimiter) rollover(now time.Time) bool {
	if now.Sub(f.windowStart) < f.cfg.Window {
		return false
	}
	f.available = f.cfg.PermitLimit
	f.windowStart = now
	f.stopTimer()

	for f.queue.Len() > 0 {
		e := f.queue.Front()
		if f.cfg.QueueOrder == NewestFirst {
			e = f.queue.Back()
		}
		w := e.Value.(*waiter)
		if w.permits > f.available {
			break
		}
		f.available -= w.permits
		f.resolve(w, f.stamp(granted(f.cfg.PermitLimit, f.available)))
	}
	for f.queue.Len() > 0 {
		f.resolve(f.queue.Front().Value.(*waiter), f.deny(now))
	}
	return true
}

func (f *FixedWindowLimiter) resolve(w *waiter, lease Lease) {
	f.unlink(w)
	w.result <- lease
}

func (f *FixedWindowLimiter) unlink(w *waiter) {
	f.queue.Remove(w.elem)
	w.elem = nil
	f.queued -= w.permits
}

func (f *FixedWindowLimiter) armTimer(now time.Time) {
	if f.timer != nil {
		return
	}
	f.timerGen++
	gen := f.timerGen
	d := f.windowStart.Add(f.cfg.Window).Sub(now)
	f.timer = f.clock.AfterFunc(d, func() { f.onTimer(gen) })
}

func (f *FixedWindowLimiter) stopTimer() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func (f *FixedWindowLimiter) onTimer(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer == nil || gen != f.timerGen {
		return
	}
	f.timer = nil
	now := f.clock.Now()
	if !f.rollover(now) && f.queue.Len() > 0 {
		f.armTimer(now)
	}
}
