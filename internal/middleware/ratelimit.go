package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudvault/rategate/internal/ratelimit"
)

// ResultKey is where the limiter decision is stored on the request context
// for downstream middleware (decision logging).
const ResultKey = "rate_limit_result"

// PolicyKey holds the name of the policy that was applied.
const PolicyKey = "rate_limit_policy"

func RateLimit(limiter *ratelimit.RateLimiter, registry *ratelimit.PolicyRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.GetString(IdentifierKey)
		if identifier == "" {
			identifier = c.ClientIP()
		}

		policy := registry.GetPolicyForPath(c.Request.URL.Path)

		result := limiter.Check(c.Request.Context(), identifier, policy)

		c.Set(ResultKey, result)
		c.Set(PolicyKey, policy.Name)

		// Set rate limit headers
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", policy.MaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetTime))

		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", fmt.Sprintf("%d", result.RetryAfter))
			}

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"policy":      policy.Name,
				"limit":       policy.MaxRequests,
				"retry_after": result.RetryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
