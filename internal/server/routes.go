package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/roomtalk/roomtalk/internal/handlers"
	"github.com/roomtalk/roomtalk/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	roomHandler := handlers.NewRoomHandler(s.Session, s.Composer)
	wsHandler := handlers.NewWSHandler(s.pushHub)
	rateLimiter := middleware.RateLimiter()

	s.E.POST("/rooms/:code/join", roomHandler.JoinPost, rateLimiter)
	s.E.POST("/rooms/leave", roomHandler.LeavePost)

	s.E.POST("/messages", roomHandler.MessagePost, rateLimiter)
	s.E.POST("/messages/voice", roomHandler.VoicePost, rateLimiter)
	s.E.GET("/timeline", roomHandler.TimelineGet)

	s.E.GET("/ws", wsHandler.Serve)

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
}
