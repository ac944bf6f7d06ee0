package surreal

import (
	"time"

	"github.com/roomtalk/roomtalk/internal/message"
)

// row is the shape of a record in the SurrealDB message table.
//
// The client-generated identity lives under msg_id so it never collides
// with the record id SurrealDB assigns on CREATE; the surrogate key is
// never read back into the timeline. created_at is stored as RFC3339 UTC
// text, which sorts chronologically, so ORDER BY created_at at the source
// is the ordering the timeline trusts.
type row struct {
	MsgID     string `json:"msg_id"`
	RoomCode  string `json:"room_code"`
	Content   string `json:"content"`
	Type      string `json:"message_type"`
	SessionID string `json:"session_id"`
	CreatedAt string `json:"created_at"`
}

func toRow(rec message.Record) row {
	return row{
		MsgID:     rec.ID,
		RoomCode:  rec.RoomCode,
		Content:   rec.Content,
		Type:      string(rec.Type),
		SessionID: rec.SessionID,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromRow(r row) message.Record {
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}
	return message.Record{
		ID:        r.MsgID,
		RoomCode:  r.RoomCode,
		Content:   r.Content,
		Type:      message.Type(r.Type),
		SessionID: r.SessionID,
		CreatedAt: createdAt,
	}
}

// fromNotification decodes a live query notification payload. SurrealDB
// delivers these as loosely typed maps; anything that does not carry the
// message fields is ignored.
func fromNotification(data any) (message.Record, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return message.Record{}, false
	}

	str := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}

	r := row{
		MsgID:     str("msg_id"),
		RoomCode:  str("room_code"),
		Content:   str("content"),
		Type:      str("message_type"),
		SessionID: str("session_id"),
		CreatedAt: str("created_at"),
	}
	if r.MsgID == "" || r.RoomCode == "" {
		return message.Record{}, false
	}
	return fromRow(r), true
}
