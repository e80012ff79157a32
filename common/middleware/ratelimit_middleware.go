package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/synapse/orchestrator/common/ratelimit"
)

// clientIdentity keys the per-client limit. Operators identify with
// X-Operator-Id; anonymous callers are bucketed by remote address.
func clientIdentity(c echo.Context) string {
	if operator := c.Request().Header.Get("X-Operator-Id"); operator != "" {
		return operator
	}
	return c.RealIP()
}

// GlobalRateLimitMiddleware checks the service-wide rate limit.
// Limiter errors fail open: availability over strictness.
func GlobalRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := rateLimiter.CheckGlobalLimit(c.Request().Context(), limit)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "global_rate_limit_exceeded",
					"message": "Service is experiencing high load. Please try again later.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window":              "60 seconds",
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}

// ClientRateLimitMiddleware checks the per-client submission limit
func ClientRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clientID := clientIdentity(c)

			result, err := rateLimiter.CheckClientLimit(c.Request().Context(), clientID, limit, 60)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "client_rate_limit_exceeded",
					"message": "You have exceeded your submission quota. Please wait before trying again.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window":              "60 seconds",
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
