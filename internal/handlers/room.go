package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"

	"github.com/roomtalk/roomtalk/internal/composer"
	"github.com/roomtalk/roomtalk/internal/message"
	"github.com/roomtalk/roomtalk/internal/room"
	"github.com/roomtalk/roomtalk/internal/speech"
)

// sessionCookie remembers the last joined room across page loads.
const sessionCookie = "roomtalk"

// RoomHandler exposes the room lifecycle and message operations over HTTP.
type RoomHandler struct {
	session  *room.Session
	composer *composer.Composer
}

// NewRoomHandler creates a handler bound to the process's room session.
func NewRoomHandler(s *room.Session, c *composer.Composer) *RoomHandler {
	return &RoomHandler{session: s, composer: c}
}

// timelineResponse is the JSON shape of GET /timeline.
type timelineResponse struct {
	Room     string           `json:"room"`
	State    string           `json:"state"`
	Degraded bool             `json:"degraded"`
	Records  []message.Record `json:"records"`
}

// JoinPost joins the room named in the path.
func (h *RoomHandler) JoinPost(c echo.Context) error {
	roomCode := c.Param("code")

	if err := h.session.Join(c.Request().Context(), roomCode); err != nil {
		if errors.Is(err, room.ErrEmptyRoomCode) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, "could not subscribe to room")
	}

	if sess, err := session.Get(sessionCookie, c); err == nil {
		sess.Values["room"] = roomCode
		_ = sess.Save(c.Request(), c.Response())
	}

	return c.JSON(http.StatusOK, map[string]string{
		"room":       roomCode,
		"session_id": h.session.SessionID(),
	})
}

// LeavePost leaves the joined room.
func (h *RoomHandler) LeavePost(c echo.Context) error {
	h.session.Leave()

	if sess, err := session.Get(sessionCookie, c); err == nil {
		delete(sess.Values, "room")
		_ = sess.Save(c.Request(), c.Response())
	}

	return c.NoContent(http.StatusNoContent)
}

// sendRequest is the JSON body of POST /messages.
type sendRequest struct {
	Content string `json:"content"`
}

// MessagePost publishes a typed text message.
func (h *RoomHandler) MessagePost(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	rec, err := h.composer.SendText(c.Request().Context(), req.Content)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(http.StatusAccepted, rec)
}

// VoicePost runs single-shot recognition on an uploaded clip and sends the
// transcript as a text message.
func (h *RoomHandler) VoicePost(c echo.Context) error {
	file, err := c.FormFile("audio")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing audio clip")
	}

	locale := language.Und
	if tag := c.FormValue("locale"); tag != "" {
		parsed, err := language.Parse(tag)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid locale")
		}
		locale = parsed
	}

	clip, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable audio clip")
	}
	defer clip.Close()

	rec, err := h.composer.SendVoice(c.Request().Context(), locale, clip)
	if err != nil {
		if errors.Is(err, speech.ErrRecognizerUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "speech recognition unavailable")
		}
		return sendError(c, err)
	}
	return c.JSON(http.StatusAccepted, rec)
}

// TimelineGet returns the joined room's ordered timeline.
func (h *RoomHandler) TimelineGet(c echo.Context) error {
	records := h.session.Timeline()
	if records == nil {
		records = []message.Record{}
	}
	if h.session.Degraded() {
		c.Response().Header().Set("X-Roomtalk-Degraded", "true")
	}
	return c.JSON(http.StatusOK, timelineResponse{
		Room:     h.session.Room(),
		State:    h.session.State().String(),
		Degraded: h.session.Degraded(),
		Records:  records,
	})
}

func sendError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, composer.ErrEmptyContent), errors.Is(err, composer.ErrNotJoined):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		c.Response().Header().Set("X-Roomtalk-Degraded", "true")
		return echo.NewHTTPError(http.StatusBadGateway, "publish failed")
	}
}
