package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// MemoryStore implements the same algorithm as the Redis script against
// in-process state. It is only correct when a single instance serves an
// identifier; it exists for single-node deployments and for tests.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	metrics map[string]*memoryMetrics
	guards  map[string]*memoryGuard
}

type memoryBucket struct {
	tokens     float64
	lastRefill int64 // unix ms
	refillRate float64
	isAdaptive bool
	window     []int64 // admission timestamps in ms, ascending
	expiresAt  int64   // unix ms, mirrors the Redis key TTL
}

type memoryMetrics struct {
	hits      int64
	blocks    int64
	expiresAt int64
}

type memoryGuard struct {
	count     int64
	expiresAt int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*memoryBucket),
		metrics: make(map[string]*memoryMetrics),
		guards:  make(map[string]*memoryGuard),
	}
}

func (s *MemoryStore) RunLimit(_ context.Context, identifier string, policy RateLimitPolicy, now time.Time) (limitOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	baseRate := policy.BaseRefillRate()

	bucket, ok := s.buckets[identifier]
	if !ok || nowMs >= bucket.expiresAt {
		bucket = &memoryBucket{
			tokens:     float64(policy.TokensPerInterval),
			lastRefill: nowMs,
			refillRate: baseRate,
		}
		s.buckets[identifier] = bucket
	}

	// continuous fractional refill
	elapsed := nowMs - bucket.lastRefill
	if elapsed < 0 {
		elapsed = 0
	}
	bucket.tokens = math.Min(float64(policy.TokensPerInterval), bucket.tokens+float64(elapsed)*bucket.refillRate)
	bucket.lastRefill = nowMs

	// prune entries that fell out of the window
	cutoff := nowMs - policy.WindowMs
	keep := bucket.window[:0]
	for _, ts := range bucket.window {
		if ts >= cutoff {
			keep = append(keep, ts)
		}
	}
	bucket.window = keep

	sustained := len(bucket.window)
	recent := 0
	oneSecondAgo := nowMs - 1000
	for _, ts := range bucket.window {
		if ts >= oneSecondAgo {
			recent++
		}
	}

	if float64(sustained) >= float64(policy.MaxRequests)*policy.HighUsageThreshold {
		if !bucket.isAdaptive {
			bucket.refillRate *= policy.AdaptiveMultiplier
			bucket.isAdaptive = true
		}
	} else if bucket.isAdaptive {
		bucket.refillRate = baseRate
		bucket.isAdaptive = false
	}

	counters := s.countersFor(identifier, nowMs)

	admitted := bucket.tokens >= 1 && recent < policy.MaxPerSecond()
	if admitted {
		bucket.tokens--
		bucket.window = append(bucket.window, nowMs)
		counters.hits++
	} else {
		counters.blocks++
	}

	bucket.expiresAt = nowMs + (policy.WindowSeconds()+60)*1000

	return limitOutcome{
		Admitted:       admitted,
		Remaining:      int(math.Floor(bucket.tokens)),
		SustainedUsage: sustained,
		IsAdaptive:     bucket.isAdaptive,
		RefillRate:     bucket.refillRate,
	}, nil
}

func (s *MemoryStore) countersFor(identifier string, nowMs int64) *memoryMetrics {
	m, ok := s.metrics[identifier]
	if !ok || nowMs >= m.expiresAt {
		m = &memoryMetrics{}
		s.metrics[identifier] = m
	}
	m.expiresAt = nowMs + 86400*1000
	return m
}

func (s *MemoryStore) IncrGuard(_ context.Context, identifier string, ttl time.Duration, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMs := now.UnixMilli()
	g, ok := s.guards[identifier]
	if !ok || nowMs >= g.expiresAt {
		// Fixed window: the expiry is armed once, when the counter is
		// created. Refreshing it on every increment would keep the window
		// open forever for a steady caller.
		g = &memoryGuard{expiresAt: nowMs + ttl.Milliseconds()}
		s.guards[identifier] = g
	}
	g.count++
	return g.count, nil
}

func (s *MemoryStore) Metrics(_ context.Context, identifier string) (Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[identifier]
	if !ok || time.Now().UnixMilli() >= m.expiresAt {
		return Metrics{}, nil
	}
	return Metrics{Hits: m.hits, Blocks: m.blocks, Total: m.hits + m.blocks}, nil
}

func (s *MemoryStore) ResetMetrics(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.metrics, identifier)
	return nil
}
