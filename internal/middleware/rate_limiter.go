package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RateLimiter creates a new rate limiter middleware for the message and
// join endpoints. It limits requests to 20 per minute per IP address,
// enough for conversation pace while keeping a runaway client from
// flooding the shared timeline.
func RateLimiter() echo.MiddlewareFunc {
	config := middleware.RateLimiterConfig{
		// NewRateLimiterMemoryStore is an in-memory store, which fits a
		// single-instance deployment.
		Store: middleware.NewRateLimiterMemoryStore(20), // 20 requests per minute

		// We identify clients by their real IP address.
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.String(http.StatusTooManyRequests, "Sending too fast. Please slow down.")
		},
	}
	return middleware.RateLimiterWithConfig(config)
}
