package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudvault/rategate/internal/circuitbreaker"
)

// fakeClock lets tests drive the limiter's idea of time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// spyStore records calls and can be told to fail.
type spyStore struct {
	inner      Store
	limitCalls int
	guardCalls int
	failLimit  error
}

func newSpyStore() *spyStore {
	return &spyStore{inner: NewMemoryStore()}
}

func (s *spyStore) RunLimit(ctx context.Context, identifier string, policy RateLimitPolicy, now time.Time) (limitOutcome, error) {
	s.limitCalls++
	if s.failLimit != nil {
		return limitOutcome{}, s.failLimit
	}
	return s.inner.RunLimit(ctx, identifier, policy, now)
}

func (s *spyStore) IncrGuard(ctx context.Context, identifier string, ttl time.Duration, now time.Time) (int64, error) {
	s.guardCalls++
	return s.inner.IncrGuard(ctx, identifier, ttl, now)
}

func (s *spyStore) Metrics(ctx context.Context, identifier string) (Metrics, error) {
	return s.inner.Metrics(ctx, identifier)
}

func (s *spyStore) ResetMetrics(ctx context.Context, identifier string) error {
	return s.inner.ResetMetrics(ctx, identifier)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func authPolicy() RateLimitPolicy {
	return RateLimitPolicy{
		Name:               "auth",
		WindowMs:           15000,
		MaxRequests:        10,
		TokensPerInterval:  10,
		IntervalMs:         15000,
		HighUsageThreshold: 0.8,
		AdaptiveMultiplier: 0.6,
	}
}

func TestRateLimiter_EndToEndAuthScenario(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(NewMemoryStore(), quietLogger(), Options{
		GuardLimit:   100,
		TimeProvider: clock.Now,
	})
	policy := authPolicy()
	ctx := context.Background()

	// ten rapid calls are all admitted with decreasing remaining
	for i := 0; i < 10; i++ {
		result := limiter.Check(ctx, "203.0.113.5", policy)
		require.True(t, result.Allowed, "call %d should be allowed", i+1)
		assert.Equal(t, 9-i, result.Remaining)
		assert.Zero(t, result.RetryAfter)
	}

	// the eleventh call inside the same window is denied with the interval
	// as retry-after
	result := limiter.Check(ctx, "203.0.113.5", policy)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 15, result.RetryAfter)
	assert.Equal(t, clock.Now().Add(15*time.Second).Unix(), result.ResetTime)
}

func TestRateLimiter_InvalidIdentifierNeverReachesStore(t *testing.T) {
	store := newSpyStore()
	limiter := NewRateLimiter(store, quietLogger(), Options{})
	ctx := context.Background()

	result := limiter.Check(ctx, "bad id\n", authPolicy())

	assert.False(t, result.Allowed)
	assert.NotZero(t, result.RetryAfter)
	assert.Zero(t, store.limitCalls, "invalid identifier must not reach the store")
	assert.Zero(t, store.guardCalls, "invalid identifier must not reach the store")
}

// generous policy so only the guard can deny
func guardTestPolicy() RateLimitPolicy {
	return RateLimitPolicy{
		Name:               "api",
		WindowMs:           60000,
		MaxRequests:        1000,
		TokensPerInterval:  1000,
		IntervalMs:         60000,
		HighUsageThreshold: 0.8,
		AdaptiveMultiplier: 0.6,
	}
}

func TestRateLimiter_GuardPrecheck(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(NewMemoryStore(), quietLogger(), Options{
		GuardLimit:   5,
		GuardTTL:     2 * time.Second,
		TimeProvider: clock.Now,
	})
	policy := guardTestPolicy()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result := limiter.Check(ctx, "user-1", policy)
		require.True(t, result.Allowed, "call %d within the guard ceiling", i+1)
	}

	result := limiter.Check(ctx, "user-1", policy)
	assert.False(t, result.Allowed)
	assert.Equal(t, guardRetryAfter, result.RetryAfter)
}

func TestRateLimiter_GuardWindowResets(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(NewMemoryStore(), quietLogger(), Options{
		GuardLimit:   5,
		GuardTTL:     2 * time.Second,
		TimeProvider: clock.Now,
	})
	policy := guardTestPolicy()
	ctx := context.Background()

	// a steady caller under the per-window ceiling is never guard-denied,
	// no matter how long it keeps going
	for i := 0; i < 30; i++ {
		result := limiter.Check(ctx, "steady", policy)
		require.True(t, result.Allowed, "steady call %d", i+1)
		clock.Advance(time.Second)
	}

	// a burst that trips the guard recovers once the window closes
	for i := 0; i < 6; i++ {
		limiter.Check(ctx, "bursty", policy)
	}
	result := limiter.Check(ctx, "bursty", policy)
	require.False(t, result.Allowed)
	assert.Equal(t, guardRetryAfter, result.RetryAfter)

	clock.Advance(2100 * time.Millisecond)
	result = limiter.Check(ctx, "bursty", policy)
	assert.True(t, result.Allowed, "guard window expired, caller admitted again")
}

func TestRateLimiter_FailsOpenWhileBreakerClosed(t *testing.T) {
	store := newSpyStore()
	store.failLimit = errors.New("connection refused")
	limiter := NewRateLimiter(store, quietLogger(), Options{
		Breaker: circuitbreaker.Config{FailureThreshold: 5},
	})
	policy := authPolicy()
	ctx := context.Background()

	// a single transient store error does not block traffic
	result := limiter.Check(ctx, "user-1", policy)
	assert.True(t, result.Allowed)
	assert.Equal(t, policy.MaxRequests-1, result.Remaining)
}

func TestRateLimiter_FailsClosedOnceBreakerOpens(t *testing.T) {
	clock := newFakeClock()
	store := newSpyStore()
	store.failLimit = errors.New("connection refused")
	limiter := NewRateLimiter(store, quietLogger(), Options{
		Breaker:      circuitbreaker.Config{FailureThreshold: 3, RecoveryTime: 30 * time.Second},
		TimeProvider: clock.Now,
	})
	policy := authPolicy()
	ctx := context.Background()

	// the first failures fail open
	for i := 0; i < 2; i++ {
		result := limiter.Check(ctx, "user-1", policy)
		assert.True(t, result.Allowed)
	}

	// the third failure opens the breaker: this check and all following ones
	// are denied without reaching the store
	result := limiter.Check(ctx, "user-1", policy)
	assert.False(t, result.Allowed)
	assert.Equal(t, breakerRetryAfter, result.RetryAfter)

	callsBefore := store.limitCalls
	result = limiter.Check(ctx, "user-1", policy)
	assert.False(t, result.Allowed)
	assert.Equal(t, callsBefore, store.limitCalls, "open breaker must skip the store")

	// after the recovery time the store heals and calls flow again
	store.failLimit = nil
	clock.Advance(31 * time.Second)

	result = limiter.Check(ctx, "user-1", policy)
	assert.True(t, result.Allowed)
	assert.Equal(t, circuitbreaker.StateClosed, limiter.BreakerMetrics().State)
}

func TestRateLimiter_MetricsLifecycle(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(NewMemoryStore(), quietLogger(), Options{
		GuardLimit:   100,
		TimeProvider: clock.Now,
	})
	policy := authPolicy()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		limiter.Check(ctx, "user-1", policy)
	}

	m, err := limiter.Metrics(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), m.Hits)
	assert.Equal(t, int64(2), m.Blocks)
	assert.Equal(t, int64(12), m.Total)

	require.NoError(t, limiter.ResetMetrics(ctx, "user-1"))

	m, err = limiter.Metrics(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, m)

	_, err = limiter.Metrics(ctx, "bad id\n")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	assert.ErrorIs(t, limiter.ResetMetrics(ctx, "bad id\n"), ErrInvalidIdentifier)
}

func TestRateLimiter_AdaptiveFlagSurfacesInResult(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(NewMemoryStore(), quietLogger(), Options{
		GuardLimit:   1000,
		TimeProvider: clock.Now,
	})
	policy := RateLimitPolicy{
		Name:               "adaptive",
		WindowMs:           60000,
		MaxRequests:        10,
		TokensPerInterval:  100,
		IntervalMs:         1000,
		HighUsageThreshold: 0.8,
		AdaptiveMultiplier: 0.5,
	}
	ctx := context.Background()

	var result Result
	for i := 0; i < 9; i++ {
		result = limiter.Check(ctx, "user-1", policy)
		require.True(t, result.Allowed)
		clock.Advance(1100 * time.Millisecond)
	}

	assert.True(t, result.IsAdaptive)
	assert.Equal(t, 8, result.SustainedUsage)
}
