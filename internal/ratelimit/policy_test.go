package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyValidate(t *testing.T) {
	valid := RateLimitPolicy{
		Name:               "test",
		WindowMs:           60000,
		MaxRequests:        100,
		TokensPerInterval:  10,
		IntervalMs:         10000,
		HighUsageThreshold: 0.8,
		AdaptiveMultiplier: 0.6,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*RateLimitPolicy)
	}{
		{"zero window", func(p *RateLimitPolicy) { p.WindowMs = 0 }},
		{"negative max requests", func(p *RateLimitPolicy) { p.MaxRequests = -1 }},
		{"zero tokens", func(p *RateLimitPolicy) { p.TokensPerInterval = 0 }},
		{"zero interval", func(p *RateLimitPolicy) { p.IntervalMs = 0 }},
		{"threshold above one", func(p *RateLimitPolicy) { p.HighUsageThreshold = 1.5 }},
		{"threshold zero", func(p *RateLimitPolicy) { p.HighUsageThreshold = 0 }},
		{"multiplier of one", func(p *RateLimitPolicy) { p.AdaptiveMultiplier = 1 }},
		{"multiplier zero", func(p *RateLimitPolicy) { p.AdaptiveMultiplier = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestPolicyDerivedValues(t *testing.T) {
	p := RateLimitPolicy{WindowMs: 15000, MaxRequests: 10, TokensPerInterval: 10, IntervalMs: 15000}

	assert.Equal(t, int64(15), p.WindowSeconds())
	assert.InDelta(t, 10.0/15000.0, p.BaseRefillRate(), 1e-12)

	// ceil(10 / 15) is 1 but the cap is floored at the bucket capacity so a
	// full bucket can be spent in one burst
	assert.Equal(t, 10, p.MaxPerSecond())

	wide := RateLimitPolicy{WindowMs: 60000, MaxRequests: 500, TokensPerInterval: 9, IntervalMs: 100}
	assert.Equal(t, 9, wide.MaxPerSecond())

	busy := RateLimitPolicy{WindowMs: 60000, MaxRequests: 300, TokensPerInterval: 2, IntervalMs: 1000}
	assert.Equal(t, 5, busy.MaxPerSecond())
}

func TestPolicyRegistry_Defaults(t *testing.T) {
	reg, err := NewPolicyRegistry(nil, nil, "")
	require.NoError(t, err)

	for _, name := range []string{"auth", "admin", "storage", "api"} {
		_, ok := reg.Get(name)
		assert.True(t, ok, "built-in policy %q should exist", name)
	}

	_, ok := reg.Get("missing")
	assert.False(t, ok)

	assert.Len(t, reg.List(), 4)
}

func TestPolicyRegistry_PathRouting(t *testing.T) {
	reg, err := NewPolicyRegistry(nil, nil, "")
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
	}{
		{"/auth/login", "auth"},
		{"/auth", "auth"},
		{"/admin/analytics", "admin"},
		{"/api/storage/upload", "storage"},
		{"/api/files/42", "storage"},
		{"/api/users", "api"},
		{"/health", "api"},
		{"/", "api"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reg.GetPolicyForPath(tt.path).Name, "path %s", tt.path)
	}
}

func TestPolicyRegistry_LongestPrefixWins(t *testing.T) {
	policies := DefaultPolicies()
	routes := []PathRoute{
		{Prefix: "/api", Policy: "api"},
		{Prefix: "/api/storage", Policy: "storage"},
		{Prefix: "/api/storage/admin", Policy: "admin"},
	}
	reg, err := NewPolicyRegistry(policies, routes, "api")
	require.NoError(t, err)

	assert.Equal(t, "admin", reg.GetPolicyForPath("/api/storage/admin/purge").Name)
	assert.Equal(t, "storage", reg.GetPolicyForPath("/api/storage/upload").Name)
	assert.Equal(t, "api", reg.GetPolicyForPath("/api/other").Name)
}

func TestPolicyRegistry_RejectsBadConfig(t *testing.T) {
	bad := DefaultPolicies()
	bad[0].WindowMs = 0
	_, err := NewPolicyRegistry(bad, nil, "")
	assert.Error(t, err)

	_, err = NewPolicyRegistry(DefaultPolicies(), nil, "missing")
	assert.Error(t, err)

	routes := []PathRoute{{Prefix: "/x", Policy: "missing"}}
	_, err = NewPolicyRegistry(DefaultPolicies(), routes, "api")
	assert.Error(t, err)
}
