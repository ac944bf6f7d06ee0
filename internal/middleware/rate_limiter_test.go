package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	e := echo.New()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}
	e.POST("/messages", handler, RateLimiter())

	t.Run("allows requests within the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/messages", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("blocks a client that floods the endpoint", func(t *testing.T) {
		clientIP := "192.0.2.2:1234"

		blocked := false
		for i := 0; i < 100; i++ {
			req := httptest.NewRequest(http.MethodPost, "/messages", nil)
			req.RemoteAddr = clientIP
			rec := httptest.NewRecorder()

			e.ServeHTTP(rec, req)
			if rec.Code == http.StatusTooManyRequests {
				blocked = true
				break
			}
		}
		assert.True(t, blocked, "sustained flooding should eventually be limited")
	})

	t.Run("limits clients independently", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/messages", nil)
		req.RemoteAddr = "192.0.2.3:1234"
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "a fresh client is not affected by another client's limit")
	})
}
