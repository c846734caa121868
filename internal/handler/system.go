package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudvault/rategate/internal/ratelimit"
)

// Handles system-related endpoints
type SystemHandler struct {
	limiter *ratelimit.RateLimiter
}

func NewSystemHandler(limiter *ratelimit.RateLimiter) *SystemHandler {
	return &SystemHandler{
		limiter: limiter,
	}
}

// Returns the status of the store circuit breaker
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	metrics := h.limiter.BreakerMetrics()

	c.JSON(http.StatusOK, gin.H{
		"state":             metrics.State.String(),
		"failure_count":     metrics.FailureCount,
		"last_failure_time": metrics.LastFailureTime,
	})
}

// Manually resets the circuit breaker
func (h *SystemHandler) ResetCircuitBreaker(c *gin.Context) {
	h.limiter.ResetBreaker()

	c.JSON(http.StatusOK, gin.H{
		"message": "Circuit breaker reset successfully",
	})
}
