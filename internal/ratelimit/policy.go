package ratelimit

import (
	"fmt"
	"math"
	"strings"
)

// RateLimitPolicy bundles the limits applied to one class of requests.
// Policies are loaded at startup and never mutated afterwards.
type RateLimitPolicy struct {
	Name               string  `json:"name"`
	WindowMs           int64   `json:"window_ms"`            // sliding window length
	MaxRequests        int     `json:"max_requests"`         // cap over the window
	TokensPerInterval  int     `json:"tokens_per_interval"`  // bucket capacity
	IntervalMs         int64   `json:"interval_ms"`          // nominal refill period
	HighUsageThreshold float64 `json:"high_usage_threshold"` // fraction of MaxRequests that triggers adaptive mode
	AdaptiveMultiplier float64 `json:"adaptive_multiplier"`  // factor applied to the refill rate in adaptive mode
}

func (p RateLimitPolicy) Validate() error {
	if p.WindowMs <= 0 || p.MaxRequests <= 0 || p.TokensPerInterval <= 0 || p.IntervalMs <= 0 {
		return fmt.Errorf("policy %q: window, limits and interval must be positive", p.Name)
	}
	if p.HighUsageThreshold <= 0 || p.HighUsageThreshold > 1 {
		return fmt.Errorf("policy %q: high usage threshold must be in (0, 1]", p.Name)
	}
	if p.AdaptiveMultiplier <= 0 || p.AdaptiveMultiplier >= 1 {
		return fmt.Errorf("policy %q: adaptive multiplier must be in (0, 1)", p.Name)
	}
	return nil
}

// WindowSeconds returns the sliding window length in whole seconds.
func (p RateLimitPolicy) WindowSeconds() int64 {
	return p.WindowMs / 1000
}

// BaseRefillRate is the nominal refill rate in tokens per millisecond.
func (p RateLimitPolicy) BaseRefillRate() float64 {
	return float64(p.TokensPerInterval) / float64(p.IntervalMs)
}

// MaxPerSecond is the burst cap applied to the trailing one-second slice of
// the window. It is floored at the bucket capacity so that a freshly filled
// bucket can always be spent in a single burst; the cap exists to stop
// sustained second-over-second bursting, not the first burst.
func (p RateLimitPolicy) MaxPerSecond() int {
	perSecond := int(math.Ceil(float64(p.MaxRequests) / (float64(p.WindowMs) / 1000)))
	if perSecond < p.TokensPerInterval {
		return p.TokensPerInterval
	}
	return perSecond
}

// PathRoute maps a request path prefix to a policy name. Routes are matched
// longest prefix first.
type PathRoute struct {
	Prefix string `json:"prefix"`
	Policy string `json:"policy"`
}

// PolicyRegistry holds the named policy table and the path routing rules.
type PolicyRegistry struct {
	policies      map[string]RateLimitPolicy
	routes        []PathRoute
	defaultPolicy string
}

// DefaultPolicies returns the built-in policy set: auth endpoints get the
// strictest policy, admin endpoints a generous hourly-scoped one, bulk
// storage operations a medium per-minute one, everything else the general
// API policy.
func DefaultPolicies() []RateLimitPolicy {
	return []RateLimitPolicy{
		{Name: "auth", WindowMs: 15000, MaxRequests: 10, TokensPerInterval: 10, IntervalMs: 15000, HighUsageThreshold: 0.8, AdaptiveMultiplier: 0.6},
		{Name: "admin", WindowMs: 3600000, MaxRequests: 1000, TokensPerInterval: 100, IntervalMs: 60000, HighUsageThreshold: 0.8, AdaptiveMultiplier: 0.6},
		{Name: "storage", WindowMs: 60000, MaxRequests: 120, TokensPerInterval: 60, IntervalMs: 60000, HighUsageThreshold: 0.8, AdaptiveMultiplier: 0.6},
		{Name: "api", WindowMs: 60000, MaxRequests: 300, TokensPerInterval: 100, IntervalMs: 60000, HighUsageThreshold: 0.8, AdaptiveMultiplier: 0.6},
	}
}

// DefaultRoutes returns the built-in path routing table.
func DefaultRoutes() []PathRoute {
	return []PathRoute{
		{Prefix: "/auth", Policy: "auth"},
		{Prefix: "/admin", Policy: "admin"},
		{Prefix: "/api/storage", Policy: "storage"},
		{Prefix: "/api/files", Policy: "storage"},
	}
}

func NewPolicyRegistry(policies []RateLimitPolicy, routes []PathRoute, defaultPolicy string) (*PolicyRegistry, error) {
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	if len(routes) == 0 {
		routes = DefaultRoutes()
	}
	if defaultPolicy == "" {
		defaultPolicy = "api"
	}

	table := make(map[string]RateLimitPolicy, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		table[p.Name] = p
	}

	if _, ok := table[defaultPolicy]; !ok {
		return nil, fmt.Errorf("default policy %q is not defined", defaultPolicy)
	}
	for _, r := range routes {
		if _, ok := table[r.Policy]; !ok {
			return nil, fmt.Errorf("route %q references undefined policy %q", r.Prefix, r.Policy)
		}
	}

	return &PolicyRegistry{
		policies:      table,
		routes:        routes,
		defaultPolicy: defaultPolicy,
	}, nil
}

// Get looks up a policy by name.
func (r *PolicyRegistry) Get(name string) (RateLimitPolicy, bool) {
	p, ok := r.policies[name]
	return p, ok
}

// GetPolicyForPath resolves the policy for a request path using
// longest-prefix matching, falling back to the default policy.
func (r *PolicyRegistry) GetPolicyForPath(path string) RateLimitPolicy {
	var best *PathRoute
	for i := range r.routes {
		route := &r.routes[i]
		if !strings.HasPrefix(path, route.Prefix) {
			continue
		}
		if best == nil || len(route.Prefix) > len(best.Prefix) {
			best = route
		}
	}

	if best != nil {
		if p, ok := r.policies[best.Policy]; ok {
			return p
		}
	}
	return r.policies[r.defaultPolicy]
}

// List returns all registered policies.
func (r *PolicyRegistry) List() []RateLimitPolicy {
	out := make([]RateLimitPolicy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	return out
}
