package message

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Type tags the payload kind of a record. Only text messages exist today;
// the tag gates speech-playback eligibility for future non-text payloads.
type Type string

const (
	TypeText Type = "text"
)

// Record is the unit of exchange between participants in a room.
//
// The ID is generated by the sender at creation time, never by the backend,
// so a sender can recognize its own record when it round-trips through a
// subscription. Backends that assign their own surrogate keys keep them
// separate; the client ID is the only identity the timeline cares about.
type Record struct {
	// ID is an opaque client-generated identifier, unique per record.
	ID string `json:"id" validate:"required"`

	// RoomCode identifies the room. All records in one timeline share it.
	RoomCode string `json:"room_code" validate:"required"`

	// Content is the message text, already transcribed if it was spoken.
	Content string `json:"content"`

	// Type is the payload kind; currently always TypeText.
	Type Type `json:"message_type" validate:"required,oneof=text"`

	// SessionID identifies the authoring client instance. It is stable for
	// the lifetime of one joined session and is used to suppress self-echo.
	SessionID string `json:"session_id" validate:"required"`

	// CreatedAt is assigned by the sender and used for ordering and display
	// only; it is not backend-authoritative.
	CreatedAt time.Time `json:"created_at"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New builds a text record authored by the given session.
func New(roomCode, content, sessionID string) Record {
	return Record{
		ID:        uuid.New().String(),
		RoomCode:  roomCode,
		Content:   content,
		Type:      TypeText,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate reports whether the record carries the fields every transport
// and timeline operation depends on.
func (r Record) Validate() error {
	return validate.Struct(r)
}

// NewSessionID generates the opaque identifier for one client instance.
// It is created once per process and reused across rooms.
func NewSessionID() string {
	return uuid.New().String()
}
