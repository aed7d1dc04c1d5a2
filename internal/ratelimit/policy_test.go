package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratelimiter/internal/models"
)

func TestTieredPolicy_Classify(t *testing.T) {
	policy := DefaultTieredPolicy()

	tests := []struct {
		name     string
		identity models.Identity
		wantKey  PartitionKey
		wantCfg  LimiterConfig
	}{
		{
			name:     "authenticated with subscription",
			identity: models.Identity{Authenticated: true, Name: "alice", PermitLimit: 5, WindowMinutes: 1},
			wantKey:  "alice",
			wantCfg:  FixedWindowConfig{PermitLimit: 5, Window: time.Minute},
		},
		{
			name:     "longer window",
			identity: models.Identity{Authenticated: true, Name: "bob", PermitLimit: 100, WindowMinutes: 15},
			wantKey:  "bob",
			wantCfg:  FixedWindowConfig{PermitLimit: 100, Window: 15 * time.Minute},
		},
		{
			name:     "missing claims default to one",
			identity: models.Identity{Authenticated: true, Name: "carol"},
			wantKey:  "carol",
			wantCfg:  FixedWindowConfig{PermitLimit: 1, Window: time.Minute},
		},
		{
			name:     "negative claims default to one",
			identity: models.Identity{Authenticated: true, Name: "dave", PermitLimit: -3, WindowMinutes: -1},
			wantKey:  "dave",
			wantCfg:  FixedWindowConfig{PermitLimit: 1, Window: time.Minute},
		},
		{
			name:     "authenticated without name",
			identity: models.Identity{Authenticated: true, PermitLimit: 2, WindowMinutes: 1},
			wantKey:  DefaultPartition,
			wantCfg:  FixedWindowConfig{PermitLimit: 2, Window: time.Minute},
		},
		{
			name:     "anonymous",
			identity: models.Anonymous(),
			wantKey:  SharedPartition,
			wantCfg:  DefaultAnonymousConfig,
		},
		{
			name:     "anonymous ignores name",
			identity: models.Identity{Name: "mallory", PermitLimit: 1000},
			wantKey:  SharedPartition,
			wantCfg:  DefaultAnonymousConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, cfg := policy.Classify(tt.identity)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantCfg, cfg)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestNewTieredPolicy_FromConfig(t *testing.T) {
	cfg := models.NewDefaultConfig().RateLimit
	cfg.Authenticated.QueueLimit = 3
	cfg.Authenticated.QueueOrder = models.QueueOrderNewestFirst

	policy, err := NewTieredPolicy(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultAnonymousConfig, policy.Anonymous)

	_, lc := policy.Classify(models.Identity{Authenticated: true, Name: "alice", PermitLimit: 5, WindowMinutes: 1})
	fw, ok := lc.(FixedWindowConfig)
	require.True(t, ok)
	assert.Equal(t, 3, fw.QueueLimit)
	assert.Equal(t, NewestFirst, fw.QueueOrder)
}

func TestNewTieredPolicy_RejectsInvalidTiers(t *testing.T) {
	cfg := models.NewDefaultConfig().RateLimit
	cfg.Authenticated.QueueOrder = "sideways"
	_, err := NewTieredPolicy(cfg)
	assert.ErrorIs(t, err, ErrInvalidQueueOrder)

	cfg = models.NewDefaultConfig().RateLimit
	cfg.Anonymous.TokensPerPeriod = 0
	_, err = NewTieredPolicy(cfg)
	assert.ErrorIs(t, err, ErrInvalidTokensPerPeriod)

	cfg = models.NewDefaultConfig().RateLimit
	cfg.Authenticated.QueueLimit = -1
	_, err = NewTieredPolicy(cfg)
	assert.ErrorIs(t, err, ErrInvalidQueueLimit)
}

func TestPolicyFunc(t *testing.T) {
	p := PolicyFunc(func(models.Identity) (PartitionKey, LimiterConfig) {
		return "fixed", minuteWindow
	})
	key, cfg := p.Classify(models.Anonymous())
	assert.Equal(t, PartitionKey("fixed"), key)
	assert.Equal(t, minuteWindow, cfg)
}
