// Package composer builds Message Records from local input, typed or
// spoken, and hands them to the active transport for publication.
package composer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/language"

	"github.com/roomtalk/roomtalk/internal/message"
	"github.com/roomtalk/roomtalk/internal/room"
	"github.com/roomtalk/roomtalk/internal/speech"
	"github.com/roomtalk/roomtalk/internal/transport"
)

// ErrEmptyContent rejects sending a record with no content.
var ErrEmptyContent = errors.New("message content must not be empty")

// ErrNotJoined rejects sending while no room is joined.
var ErrNotJoined = errors.New("no room joined")

// Composer turns local input into published records for one session.
type Composer struct {
	session    *room.Session
	tr         transport.Transport
	recognizer speech.Recognizer
}

// New creates a Composer bound to the session and its transport.
func New(session *room.Session, tr transport.Transport, recognizer speech.Recognizer) *Composer {
	return &Composer{
		session:    session,
		tr:         tr,
		recognizer: recognizer,
	}
}

// SendText builds a text record from typed input and publishes it. The
// caller does not wait for round-trip delivery; the record reaches the
// local timeline through the subscription like any other.
func (c *Composer) SendText(ctx context.Context, content string) (message.Record, error) {
	if strings.TrimSpace(content) == "" {
		return message.Record{}, ErrEmptyContent
	}
	if c.session.State() != room.StateJoined {
		return message.Record{}, ErrNotJoined
	}

	rec := message.New(c.session.Room(), content, c.session.SessionID())
	if err := rec.Validate(); err != nil {
		return message.Record{}, fmt.Errorf("invalid record: %w", err)
	}

	if err := c.tr.Publish(ctx, rec); err != nil {
		// Terminal for this publish only; the session stays joined.
		slog.Error("Publish failed", "room", rec.RoomCode, "error", err)
		c.session.MarkDegraded()
		return message.Record{}, err
	}
	return rec, nil
}

// SendVoice runs single-shot recognition on the audio clip and sends the
// transcript exactly as if it had been typed. Recognizer unavailability is
// surfaced to the caller, never swallowed into a crash.
func (c *Composer) SendVoice(ctx context.Context, locale language.Tag, audio io.Reader) (message.Record, error) {
	transcript, err := c.recognizer.RecognizeOnce(ctx, locale, audio)
	if err != nil {
		return message.Record{}, fmt.Errorf("speech recognition failed: %w", err)
	}
	return c.SendText(ctx, transcript)
}
