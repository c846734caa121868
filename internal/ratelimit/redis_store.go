package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cloudvault/rategate/internal/storage"
)

// defaultCallTimeout bounds every remote round trip. A call that exceeds it
// is treated as a store failure by the facade.
const defaultCallTimeout = 500 * time.Millisecond

// RedisStore keeps limiter state in the shared Redis instance so that all
// gateway replicas enforce one consistent budget per identifier.
type RedisStore struct {
	client      *redis.Client
	callTimeout time.Duration
}

func NewRedisStore(r *storage.RedisClient) *RedisStore {
	return &RedisStore{
		client:      r.Client(),
		callTimeout: defaultCallTimeout,
	}
}

func (s *RedisStore) RunLimit(ctx context.Context, identifier string, policy RateLimitPolicy, now time.Time) (limitOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	nowMs := now.UnixMilli()
	keys := []string{tokensKey(identifier), windowKey(identifier), metricsKey(identifier)}
	args := []interface{}{
		nowMs,
		nowMs - 1000,
		policy.WindowMs,
		policy.MaxRequests,
		policy.TokensPerInterval,
		policy.IntervalMs,
		policy.HighUsageThreshold,
		policy.AdaptiveMultiplier,
		policy.MaxPerSecond(),
		policy.WindowSeconds() + 60,
	}

	values, err := limitScript.Run(ctx, s.client, keys, args...).Slice()
	if err != nil {
		return limitOutcome{}, fmt.Errorf("limit script failed: %w", err)
	}

	return parseScriptReply(values)
}

func parseScriptReply(values []interface{}) (limitOutcome, error) {
	if len(values) != 5 {
		return limitOutcome{}, fmt.Errorf("limit script returned %d values, want 5", len(values))
	}

	admitted, ok := values[0].(int64)
	if !ok {
		return limitOutcome{}, fmt.Errorf("limit script returned non-integer admit flag")
	}
	remaining, _ := values[1].(int64)
	sustained, _ := values[2].(int64)
	adaptive, _ := values[3].(int64)

	var refillRate float64
	switch v := values[4].(type) {
	case string:
		refillRate, _ = strconv.ParseFloat(v, 64)
	case int64:
		refillRate = float64(v)
	case float64:
		refillRate = v
	}

	return limitOutcome{
		Admitted:       admitted == 1,
		Remaining:      int(remaining),
		SustainedUsage: int(sustained),
		IsAdaptive:     adaptive == 1,
		RefillRate:     refillRate,
	}, nil
}

// IncrGuard bumps the fixed-window precheck counter. Redis owns the key
// expiry, so the caller-supplied time is unused here.
func (s *RedisStore) IncrGuard(ctx context.Context, identifier string, ttl time.Duration, _ time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	key := guardKey(identifier)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// The expiry is armed once, when the counter is created. Refreshing it
	// on every increment would keep the window open forever for a steady
	// caller.
	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (s *RedisStore) Metrics(ctx context.Context, identifier string) (Metrics, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, metricsKey(identifier)).Result()
	if err != nil {
		return Metrics{}, err
	}

	var m Metrics
	m.Hits, _ = strconv.ParseInt(fields["hits"], 10, 64)
	m.Blocks, _ = strconv.ParseInt(fields["blocks"], 10, 64)
	m.Total = m.Hits + m.Blocks
	return m, nil
}

func (s *RedisStore) ResetMetrics(ctx context.Context, identifier string) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	return s.client.Del(ctx, metricsKey(identifier)).Err()
}
