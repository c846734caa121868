package models

import (
	"time"
)

// Represents one logged rate limiter decision
type RateLimitDecision struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	RequestID      string    `json:"request_id"`
	Identifier     string    `gorm:"index" json:"identifier"`
	Policy         string    `gorm:"index" json:"policy"`
	Path           string    `json:"path"`
	Allowed        bool      `gorm:"index" json:"allowed"`
	Remaining      int       `json:"remaining"`
	SustainedUsage int       `json:"sustained_usage"`
	IsAdaptive     bool      `json:"is_adaptive"`
	RetryAfter     int       `json:"retry_after,omitempty"`
	IPAddress      string    `json:"ip_address"`
}

func (RateLimitDecision) TableName() string {
	return "rate_limit_decisions"
}
