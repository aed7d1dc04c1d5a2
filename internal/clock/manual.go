package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Clock that only moves when Advance or Set is called. Timers
// whose deadline is reached are fired synchronously, in deadline order, from
// the goroutine that advanced the clock.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	c        *Manual
	deadline time.Time
	f        func()
	stopped  bool
}

// NewManual returns a manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	t := &manualTimer{c: m, deadline: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	m.mu.Unlock()

	if d <= 0 {
		// The caller may hold locks that f needs.
		go m.fire()
	}
	return t
}

// Advance moves the clock forward by d and fires due timers.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
	m.fire()
}

// Set moves the clock to t. Moving backwards is ignored.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	if t.After(m.now) {
		m.now = t
	}
	m.mu.Unlock()
	m.fire()
}

// Pending returns the number of timers that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (m *Manual) fire() {
	for {
		m.mu.Lock()
		sort.SliceStable(m.timers, func(i, j int) bool {
			return m.timers[i].deadline.Before(m.timers[j].deadline)
		})
		var due *manualTimer
		kept := m.timers[:0]
		for _, t := range m.timers {
			if t.stopped {
				continue
			}
			if due == nil && !t.deadline.After(m.now) {
				due = t
				t.stopped = true
				continue
			}
			kept = append(kept, t)
		}
		m.timers = kept
		m.mu.Unlock()

		if due == nil {
			return
		}
		// Run outside the lock: callbacks may schedule new timers.
		due.f()
	}
}

func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
