package service

import (
	"context"
	"time"

	"github.com/cloudvault/rategate/internal/repository"
)

type AnalyticsService struct {
	repository *repository.DecisionLogRepository
}

func NewAnalyticsService(repo *repository.DecisionLogRepository) *AnalyticsService {
	return &AnalyticsService{
		repository: repo,
	}
}

// Holds limiter analytics for a time range
type AnalyticsSummary struct {
	TotalChecks    int64                    `json:"total_checks"`
	Allowed        int64                    `json:"allowed"`
	Blocked        int64                    `json:"blocked"`
	BlockRate      float64                  `json:"block_rate"`
	AdaptiveChecks int64                    `json:"adaptive_checks"`
	PerPolicy      map[string]int64         `json:"per_policy"`
	TopBlocked     []map[string]interface{} `json:"top_blocked"`
}

// Holds hourly time-series data
type TimeSeriesData struct {
	Hour   time.Time `json:"hour"`
	Count  int64     `json:"count"`
	Blocks int64     `json:"blocks"`
}

// Retrieves the limiter summary for a time range
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*AnalyticsSummary, error) {
	summary := &AnalyticsSummary{}

	totalChecks, err := s.repository.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalChecks = totalChecks

	if totalChecks == 0 {
		return summary, nil
	}

	blocked, err := s.repository.CountBlocked(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.Blocked = blocked
	summary.Allowed = totalChecks - blocked
	summary.BlockRate = (float64(blocked) / float64(totalChecks)) * 100

	adaptive, err := s.repository.CountAdaptive(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.AdaptiveChecks = adaptive

	perPolicy, err := s.repository.CountByPolicy(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.PerPolicy = perPolicy

	topBlocked, err := s.repository.TopBlockedIdentifiers(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	summary.TopBlocked = topBlocked

	return summary, nil
}

// Retrieves hourly time-series data
func (s *AnalyticsService) GetTimeSeriesData(ctx context.Context, from, to time.Time) ([]TimeSeriesData, error) {
	hourlyStats, err := s.repository.GetHourlyStats(ctx, from, to)
	if err != nil {
		return nil, err
	}

	timeSeries := make([]TimeSeriesData, 0, len(hourlyStats))
	for _, stat := range hourlyStats {
		timeSeries = append(timeSeries, TimeSeriesData{
			Hour:   stat["hour"].(time.Time),
			Count:  stat["count"].(int64),
			Blocks: stat["blocks"].(int64),
		})
	}

	return timeSeries, nil
}

// Retrieves decisions for a specific identifier
type IdentifierStats struct {
	TotalChecks int64   `json:"total_checks"`
	Blocked     int64   `json:"blocked"`
	BlockRate   float64 `json:"block_rate"`
}

func (s *AnalyticsService) GetIdentifierStats(ctx context.Context, identifier string, from, to time.Time) (*IdentifierStats, error) {
	decisions, err := s.repository.FindByIdentifier(ctx, identifier, from, to, 10000, 0)
	if err != nil {
		return nil, err
	}

	stats := &IdentifierStats{
		TotalChecks: int64(len(decisions)),
	}
	if stats.TotalChecks == 0 {
		return stats, nil
	}

	for _, d := range decisions {
		if !d.Allowed {
			stats.Blocked++
		}
	}
	stats.BlockRate = (float64(stats.Blocked) / float64(stats.TotalChecks)) * 100

	return stats, nil
}

// Retrieves decision logs with pagination
func (s *AnalyticsService) GetLogs(ctx context.Context, from, to time.Time, identifier string, limit, offset int) (interface{}, error) {
	if identifier != "" {
		return s.repository.FindByIdentifier(ctx, identifier, from, to, limit, offset)
	}
	return s.repository.FindByTimeRange(ctx, from, to, limit, offset)
}

// Deletes decisions older than the retention period
func (s *AnalyticsService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutOffDate := time.Now().AddDate(0, 0, -retentionDays)
	return s.repository.DeleteOldLogs(ctx, cutOffDate)
}
