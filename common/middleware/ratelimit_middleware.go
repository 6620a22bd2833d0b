package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/ratelimit"
)

// ClientRateLimitMiddleware checks per-client rate limits.
// Requires the client identity to be set by ExtractClientUID; falls back to the remote IP.
func ClientRateLimitMiddleware(limiter ratelimit.Limiter, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := GetClientUID(c)
			if key == "" {
				key = c.RealIP()
			}

			result, err := limiter.Allow(c.Request().Context(), key)
			if err != nil {
				// On error, allow request (fail open for availability)
				log.Warn("rate limiter unavailable", "error", err)
				return next(c)
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":      "rate_limit_exceeded",
					"client_uid": key,
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
