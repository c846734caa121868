package circuitbreaker

import (
	"sync"
	"time"
)

// Implements the circuit breaker pattern for the shared-store calls. The
// breaker is process-local: every instance judges the store's health from its
// own failure history. There is no half-open probe; once the recovery time
// has elapsed the counter resets and the next call is simply attempted.
type CircuitBreaker struct {
	mu              sync.Mutex
	failures        int
	lastFailureTime time.Time

	// Configuration
	failureThreshold int           // failures before the breaker opens
	recoveryTime     time.Duration // how long the breaker stays open
	now              func() time.Time
}

type Config struct {
	FailureThreshold int           // Default: 5
	RecoveryTime     time.Duration // Default: 30 seconds
	TimeProvider     func() time.Time
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTime <= 0 {
		cfg.RecoveryTime = 30 * time.Second
	}
	if cfg.TimeProvider == nil {
		cfg.TimeProvider = time.Now
	}

	return &CircuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		recoveryTime:     cfg.RecoveryTime,
		now:              cfg.TimeProvider,
	}
}

// ShouldBlock reports whether store calls must be skipped. Once the recovery
// time has passed since the last failure the counter resets and calls flow
// again.
func (cb *CircuitBreaker) ShouldBlock() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.failures < cb.failureThreshold {
		return false
	}

	if cb.now().Sub(cb.lastFailureTime) >= cb.recoveryTime {
		cb.failures = 0
		return false
	}

	return true
}

// Records a failed store call
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.now()
}

// Records a successful store call; a single success resets the counter
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
}

// Manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.lastFailureTime = time.Time{}
}

// Returns the current state
func (cb *CircuitBreaker) State() State {
	if cb.ShouldBlock() {
		return StateOpen
	}
	return StateClosed
}

// Returns current circuit breaker metrics
func (cb *CircuitBreaker) Metrics() Metrics {
	state := cb.State()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Metrics{
		State:           state,
		FailureCount:    cb.failures,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Holds circuit breaker metrics
type Metrics struct {
	State           State
	FailureCount    int
	LastFailureTime time.Time
}
