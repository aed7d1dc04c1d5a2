package stats

import (
	"context"
	"ratelimiter/internal/models"
	"sync"
	"time"
)

// Option configures a recorder.
type Option func(*options)

type options struct {
	prefix          string
	ttl             time.Duration
	trackPartitions bool
	writeTimeout    time.Duration
}

// WithTrackPartitions enables per-partition counters.
func WithTrackPartitions(track bool) Option {
	return func(o *options) { o.trackPartitions = track }
}

// MemoryRecorder counts decisions in process memory. Counters never expire.
type MemoryRecorder struct {
	mu         sync.Mutex
	total      models.DecisionCounts
	routes     map[string]models.DecisionCounts
	partitions map[string]models.DecisionCounts

	trackPartitions bool
}

func NewMemoryRecorder(opts ...Option) *MemoryRecorder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryRecorder{
		routes:          make(map[string]models.DecisionCounts),
		partitions:      make(map[string]models.DecisionCounts),
		trackPartitions: o.trackPartitions,
	}
}

func (m *MemoryRecorder) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	increment(&m.total, ev.Granted)
	if ev.Route != "" {
		c := m.routes[ev.Route]
		increment(&c, ev.Granted)
		m.routes[ev.Route] = c
	}
	if m.trackPartitions && ev.Partition != "" {
		c := m.partitions[ev.Partition]
		increment(&c, ev.Granted)
		m.partitions[ev.Partition] = c
	}
	return nil
}

func (m *MemoryRecorder) Snapshot(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Total:      m.total,
		Routes:     copyCounts(m.routes),
		Partitions: copyCounts(m.partitions),
		Backend:    BackendMemory,
	}, nil
}

func (m *MemoryRecorder) Close() error {
	return nil
}

func increment(c *models.DecisionCounts, granted bool) {
	if granted {
		c.Admitted++
	} else {
		c.Rejected++
	}
}

func copyCounts(in map[string]models.DecisionCounts) map[string]models.DecisionCounts {
	out := make(map[string]models.DecisionCounts, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
