package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloudvault/rategate/internal/circuitbreaker"
)

const (
	// defaultGuardLimit caps how often the limiter itself may be invoked per
	// identifier inside one guard window, protecting the store from retry
	// storms before the full algorithm runs.
	defaultGuardLimit = 50
	defaultGuardTTL   = 2 * time.Second

	// retry-after values for denials that never reach the main algorithm
	invalidRetryAfter = 1
	guardRetryAfter   = 2
	breakerRetryAfter = 30
)

// RateLimiter is the entry point the HTTP layer calls for every request. It
// orchestrates identifier validation, the guard precheck, the circuit breaker
// and the atomic store operation, and owns the breaker instance so there is
// no process-global mutable state.
type RateLimiter struct {
	store      Store
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logrus.Logger
	now        func() time.Time
	guardLimit int64
	guardTTL   time.Duration
}

type Options struct {
	GuardLimit   int64
	GuardTTL     time.Duration
	Breaker      circuitbreaker.Config
	TimeProvider func() time.Time
}

func NewRateLimiter(store Store, logger *logrus.Logger, opts Options) *RateLimiter {
	if opts.GuardLimit <= 0 {
		opts.GuardLimit = defaultGuardLimit
	}
	if opts.GuardTTL <= 0 {
		opts.GuardTTL = defaultGuardTTL
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = time.Now
	}
	if opts.Breaker.TimeProvider == nil {
		opts.Breaker.TimeProvider = opts.TimeProvider
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &RateLimiter{
		store:      store,
		breaker:    circuitbreaker.New(opts.Breaker),
		logger:     logger,
		now:        opts.TimeProvider,
		guardLimit: opts.GuardLimit,
		guardTTL:   opts.GuardTTL,
	}
}

// Check runs the full rate-limit decision for one request. Denials of every
// kind come back as a Result, never as an error that would abort the request
// pipeline.
func (l *RateLimiter) Check(ctx context.Context, identifier string, policy RateLimitPolicy) Result {
	now := l.now()

	// Malformed identifiers fail closed and never reach the store.
	if !ValidateIdentifier(identifier) {
		l.logger.WithField("identifier", identifier).Warn("rejected malformed rate limit identifier")
		return l.denied(now, policy, invalidRetryAfter)
	}

	// Guard precheck: cheap absolute ceiling on limiter calls. A store error
	// here falls through to the main algorithm rather than denying.
	count, err := l.store.IncrGuard(ctx, identifier, l.guardTTL, now)
	if err != nil {
		l.logger.WithError(err).Debug("guard precheck unavailable, continuing")
	} else if count > l.guardLimit {
		return l.denied(now, policy, guardRetryAfter)
	}

	// While the breaker is open the limit cannot be enforced safely, so shed
	// load instead of admitting unbounded traffic.
	if l.breaker.ShouldBlock() {
		return l.denied(now, policy, breakerRetryAfter)
	}

	outcome, err := l.store.RunLimit(ctx, identifier, policy, now)
	if err != nil {
		l.breaker.RecordFailure()
		l.logger.WithError(err).WithField("identifier", identifier).Error("rate limit store call failed")

		if l.breaker.ShouldBlock() {
			return l.denied(now, policy, breakerRetryAfter)
		}

		// A single transient error should not block traffic: fail open until
		// the breaker opens.
		return Result{
			Allowed:   true,
			Remaining: policy.MaxRequests - 1,
			ResetTime: l.resetTime(now, policy),
		}
	}
	l.breaker.RecordSuccess()

	result := Result{
		Allowed:        outcome.Admitted,
		Remaining:      outcome.Remaining,
		ResetTime:      l.resetTime(now, policy),
		IsAdaptive:     outcome.IsAdaptive,
		SustainedUsage: outcome.SustainedUsage,
	}
	if !outcome.Admitted {
		result.RetryAfter = int(policy.IntervalMs / 1000)
	}
	return result
}

// Metrics returns the hit/block counters for an identifier.
func (l *RateLimiter) Metrics(ctx context.Context, identifier string) (Metrics, error) {
	if !ValidateIdentifier(identifier) {
		return Metrics{}, ErrInvalidIdentifier
	}
	return l.store.Metrics(ctx, identifier)
}

// ResetMetrics clears the hit/block counters for an identifier.
func (l *RateLimiter) ResetMetrics(ctx context.Context, identifier string) error {
	if !ValidateIdentifier(identifier) {
		return ErrInvalidIdentifier
	}
	return l.store.ResetMetrics(ctx, identifier)
}

// BreakerMetrics exposes the breaker for the admin surface.
func (l *RateLimiter) BreakerMetrics() circuitbreaker.Metrics {
	return l.breaker.Metrics()
}

// ResetBreaker manually closes the breaker.
func (l *RateLimiter) ResetBreaker() {
	l.breaker.Reset()
}

func (l *RateLimiter) denied(now time.Time, policy RateLimitPolicy, retryAfter int) Result {
	return Result{
		Allowed:    false,
		Remaining:  0,
		ResetTime:  l.resetTime(now, policy),
		RetryAfter: retryAfter,
	}
}

func (l *RateLimiter) resetTime(now time.Time, policy RateLimitPolicy) int64 {
	return now.Add(time.Duration(policy.IntervalMs) * time.Millisecond).Unix()
}
