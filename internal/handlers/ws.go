package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/roomtalk/roomtalk/internal/hub"
)

// writeTimeout bounds one websocket write so a stuck client cannot wedge
// its writer goroutine.
const writeTimeout = 10 * time.Second

// WSHandler streams accepted timeline records to browser clients.
type WSHandler struct {
	hub *hub.Hub
}

// NewWSHandler creates a handler on the push hub.
func NewWSHandler(h *hub.Hub) *WSHandler {
	return &WSHandler{hub: h}
}

// Serve upgrades the connection and forwards hub broadcasts until the
// client goes away.
func (h *WSHandler) Serve(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	subscriber := &hub.Subscriber{Send: make(chan []byte, 16)}
	h.hub.Register <- subscriber
	defer func() { h.hub.Unregister <- subscriber }()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-subscriber.Send:
			if !ok {
				// Dropped by the hub as a slow consumer.
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				slog.Debug("Push write failed, closing client", "error", err)
				return nil
			}
		}
	}
}
