package ratelimit

// Result is what the facade hands back to the calling layer for every check.
// Denials are always reported this way, never as an error that aborts the
// request pipeline.
type Result struct {
	Allowed        bool  `json:"allowed"`
	Remaining      int   `json:"remaining"`
	ResetTime      int64 `json:"reset_time"`            // unix seconds
	RetryAfter     int   `json:"retry_after,omitempty"` // seconds, set on denial
	IsAdaptive     bool  `json:"is_adaptive"`
	SustainedUsage int   `json:"sustained_usage"`
}

// Metrics holds the per-identifier hit/block counters.
type Metrics struct {
	Hits   int64 `json:"hits"`
	Blocks int64 `json:"blocks"`
	Total  int64 `json:"total"`
}

// limitOutcome is the raw result of one atomic limit evaluation in the store.
type limitOutcome struct {
	Admitted       bool
	Remaining      int     // floor of the bucket level after the decision
	SustainedUsage int     // window entry count before this request
	IsAdaptive     bool
	RefillRate     float64 // tokens per millisecond currently in effect
}
