package surreal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomtalk/roomtalk/internal/message"
)

func TestRowRoundTrip(t *testing.T) {
	rec := message.Record{
		ID:        "abc-123",
		RoomCode:  "room123",
		Content:   "hi",
		Type:      message.TypeText,
		SessionID: "sess-1",
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	got := fromRow(toRow(rec))
	assert.Equal(t, rec, got)
}

func TestToRow_KeepsClientIDOutOfRecordID(t *testing.T) {
	// The client identity travels as msg_id; the backend's own record id
	// is never part of the row we write.
	r := toRow(message.New("room123", "hi", "sess-1"))
	assert.NotEmpty(t, r.MsgID)
	assert.Equal(t, "room123", r.RoomCode)
	assert.Equal(t, "text", r.Type)
}

func TestFromNotification(t *testing.T) {
	tests := []struct {
		name   string
		data   any
		wantOK bool
	}{
		{
			name: "valid insert payload",
			data: map[string]any{
				"msg_id":       "abc",
				"room_code":    "room123",
				"content":      "hi",
				"message_type": "text",
				"session_id":   "sess-1",
				"created_at":   "2025-06-01T12:00:00Z",
			},
			wantOK: true,
		},
		{name: "not a map", data: "nope", wantOK: false},
		{name: "missing identity", data: map[string]any{"room_code": "room123"}, wantOK: false},
		{name: "missing room", data: map[string]any{"msg_id": "abc"}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := fromNotification(tt.data)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				require.Equal(t, "abc", rec.ID)
				assert.Equal(t, "room123", rec.RoomCode)
				assert.Equal(t, message.TypeText, rec.Type)
				assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), rec.CreatedAt)
			}
		})
	}
}

func TestFromRow_BadTimestamp(t *testing.T) {
	rec := fromRow(row{MsgID: "abc", RoomCode: "room123", CreatedAt: "garbage"})
	assert.True(t, rec.CreatedAt.IsZero())
}
