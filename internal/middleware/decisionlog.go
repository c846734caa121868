package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cloudvault/rategate/internal/models"
	"github.com/cloudvault/rategate/internal/ratelimit"
	"github.com/cloudvault/rategate/internal/repository"
)

// Buffered channel for async decision logging
var decisionChannel chan models.RateLimitDecision

// Initializes the decision logger worker
func InitDecisionLogger(repo *repository.DecisionLogRepository, log *logrus.Logger, bufferSize int) {
	decisionChannel = make(chan models.RateLimitDecision, bufferSize)

	// Background worker batches inserts so request handling never waits on
	// Postgres
	go func() {
		batch := make([]models.RateLimitDecision, 0, 100)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case decision := <-decisionChannel:
				batch = append(batch, decision)

				if len(batch) >= 100 {
					insertBatch(repo, log, batch)
					batch = make([]models.RateLimitDecision, 0, 100)
				}
			case <-ticker.C:
				if len(batch) > 0 {
					insertBatch(repo, log, batch)
					batch = make([]models.RateLimitDecision, 0, 100)
				}
			}
		}
	}()
}

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// Inserts a batch of decisions into the database
func insertBatch(repo *repository.DecisionLogRepository, log *logrus.Logger, batch []models.RateLimitDecision) {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	if err := repo.CreateBatch(ctx, batch); err != nil {
		log.WithError(err).Warn("failed to insert rate limit decisions")
	}
}

// Records every limiter decision for the analytics surface
func DecisionLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		resultValue, exists := c.Get(ResultKey)
		if !exists {
			return
		}
		result, ok := resultValue.(ratelimit.Result)
		if !ok {
			return
		}

		entry := models.RateLimitDecision{
			Timestamp:      start,
			RequestID:      c.GetString("request_id"),
			Identifier:     c.GetString(IdentifierKey),
			Policy:         c.GetString(PolicyKey),
			Path:           c.Request.URL.Path,
			Allowed:        result.Allowed,
			Remaining:      result.Remaining,
			SustainedUsage: result.SustainedUsage,
			IsAdaptive:     result.IsAdaptive,
			RetryAfter:     result.RetryAfter,
			IPAddress:      c.ClientIP(),
		}

		select {
		case decisionChannel <- entry:
			// queued
		default:
			log.Warn("decision log channel full, dropping entry")
		}
	}
}
