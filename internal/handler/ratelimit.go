package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudvault/rategate/internal/ratelimit"
)

// Handles the admin surface of the rate limiter
type RateLimitHandler struct {
	limiter  *ratelimit.RateLimiter
	registry *ratelimit.PolicyRegistry
}

func NewRateLimitHandler(limiter *ratelimit.RateLimiter, registry *ratelimit.PolicyRegistry) *RateLimitHandler {
	return &RateLimitHandler{
		limiter:  limiter,
		registry: registry,
	}
}

// Handles GET /admin/ratelimit/metrics/:id
func (h *RateLimitHandler) GetMetrics(c *gin.Context) {
	identifier := c.Param("id")

	metrics, err := h.limiter.Metrics(c.Request.Context(), identifier)
	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidIdentifier) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid identifier"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, metrics)
}

// Handles DELETE /admin/ratelimit/metrics/:id
func (h *RateLimitHandler) ResetMetrics(c *gin.Context) {
	identifier := c.Param("id")

	if err := h.limiter.ResetMetrics(c.Request.Context(), identifier); err != nil {
		if errors.Is(err, ratelimit.ErrInvalidIdentifier) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid identifier"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Metrics reset successfully",
		"identifier": identifier,
	})
}

// Handles GET /admin/ratelimit/policies
func (h *RateLimitHandler) ListPolicies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"policies": h.registry.List(),
	})
}
