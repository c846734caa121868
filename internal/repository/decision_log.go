package repository

import (
	"context"
	"time"

	"github.com/cloudvault/rategate/internal/models"
	"github.com/cloudvault/rategate/internal/storage"
)

type DecisionLogRepository struct {
	db *storage.Postgres
}

func NewDecisionLogRepository(db *storage.Postgres) *DecisionLogRepository {
	return &DecisionLogRepository{db: db}
}

// Inserts a single decision
func (r *DecisionLogRepository) Create(ctx context.Context, decision *models.RateLimitDecision) error {
	return r.db.DB.WithContext(ctx).Create(decision).Error
}

// Inserts multiple decisions (for batch insertion)
func (r *DecisionLogRepository) CreateBatch(ctx context.Context, decisions []models.RateLimitDecision) error {
	if len(decisions) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&decisions).Error
}

// Retrieves decisions within a time range
func (r *DecisionLogRepository) FindByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]models.RateLimitDecision, error) {
	var decisions []models.RateLimitDecision

	err := r.db.DB.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&decisions).Error

	return decisions, err
}

// Retrieves decisions for a specific identifier
func (r *DecisionLogRepository) FindByIdentifier(ctx context.Context, identifier string, from, to time.Time, limit, offset int) ([]models.RateLimitDecision, error) {
	var decisions []models.RateLimitDecision

	err := r.db.DB.WithContext(ctx).
		Where("identifier = ? AND timestamp BETWEEN ? AND ?", identifier, from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&decisions).Error

	return decisions, err
}

// Counts decisions in a time range
func (r *DecisionLogRepository) CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.RateLimitDecision{}).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Count(&count).Error

	return count, err
}

// Counts denied decisions in a time range
func (r *DecisionLogRepository) CountBlocked(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.RateLimitDecision{}).
		Where("allowed = ? AND timestamp BETWEEN ? AND ?", false, from, to).
		Count(&count).Error

	return count, err
}

// Counts decisions made while adaptive mode was active
func (r *DecisionLogRepository) CountAdaptive(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.RateLimitDecision{}).
		Where("is_adaptive = ? AND timestamp BETWEEN ? AND ?", true, from, to).
		Count(&count).Error

	return count, err
}

// Returns the identifiers with the most denied requests
func (r *DecisionLogRepository) TopBlockedIdentifiers(ctx context.Context, from, to time.Time, limit int) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.RateLimitDecision{}).
		Select("identifier, COUNT(*) as blocks").
		Where("allowed = ? AND timestamp BETWEEN ? AND ?", false, from, to).
		Group("identifier").
		Order("blocks DESC").
		Limit(limit).
		Rows()

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var identifier string
		var blocks int64

		if err := rows.Scan(&identifier, &blocks); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"identifier": identifier,
			"blocks":     blocks,
		})
	}

	return results, rows.Err()
}

// Counts decisions per policy in a time range
func (r *DecisionLogRepository) CountByPolicy(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.RateLimitDecision{}).
		Select("policy, COUNT(*) as count").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group("policy").
		Rows()

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	results := make(map[string]int64)
	for rows.Next() {
		var policy string
		var count int64

		if err := rows.Scan(&policy, &count); err != nil {
			return nil, err
		}
		results[policy] = count
	}

	return results, rows.Err()
}

// Returns hourly decision counts for time-series charts
func (r *DecisionLogRepository) GetHourlyStats(ctx context.Context, from, to time.Time) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	query := `
		SELECT date_trunc('hour', timestamp) AS hour,
		       COUNT(*) AS count,
		       COUNT(*) FILTER (WHERE NOT allowed) AS blocks
		FROM rate_limit_decisions
		WHERE timestamp BETWEEN ? AND ?
		GROUP BY hour
		ORDER BY hour
	`

	rows, err := r.db.DB.WithContext(ctx).Raw(query, from, to).Rows()
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var hour time.Time
		var count, blocks int64

		if err := rows.Scan(&hour, &count, &blocks); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"hour":   hour,
			"count":  count,
			"blocks": blocks,
		})
	}

	return results, rows.Err()
}

// Deletes decisions older than the cutoff
func (r *DecisionLogRepository) DeleteOldLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.RateLimitDecision{})

	return result.RowsAffected, result.Error
}
