package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudvault/rategate/internal/storage"
)

// Store is the shared state backend the limiter runs against. All mutation of
// token, window, metrics and guard state goes through it; RunLimit performs
// the full check as a single atomic operation.
type Store interface {
	RunLimit(ctx context.Context, identifier string, policy RateLimitPolicy, now time.Time) (limitOutcome, error)

	// IncrGuard bumps the fixed-window precheck counter and returns its
	// value. The expiry is armed when the counter is created and is not
	// refreshed by later increments.
	IncrGuard(ctx context.Context, identifier string, ttl time.Duration, now time.Time) (int64, error)

	Metrics(ctx context.Context, identifier string) (Metrics, error)

	ResetMetrics(ctx context.Context, identifier string) error
}

func tokensKey(identifier string) string {
	return fmt.Sprintf("ratelimit:tokens:%s", identifier)
}

func windowKey(identifier string) string {
	return fmt.Sprintf("ratelimit:window:%s", identifier)
}

func metricsKey(identifier string) string {
	return fmt.Sprintf("ratelimit:metrics:%s", identifier)
}

func guardKey(identifier string) string {
	return fmt.Sprintf("ratelimit:guard:%s", identifier)
}

// NewStore selects the state backend. "memory" keeps everything in-process
// and is only correct for a single instance; anything else uses the shared
// Redis store.
func NewStore(backend string, redis *storage.RedisClient) Store {
	switch backend {
	case "memory":
		return NewMemoryStore()
	default:
		return NewRedisStore(redis)
	}
}
