package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event is one append-only recording event. Events are never mutated or
// deleted except by bulk session cleanup.
type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Actor     string          `json:"actor,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	Timestamp time.Time       `json:"timestamp"`
}

// Fixed event vocabulary. One event per accepted lifecycle transition plus
// per-chunk ingestion and transcription outcomes.
const (
	TypeStart                = "start"
	TypePause                = "pause"
	TypeResume               = "resume"
	TypeChunkUpload          = "chunk_upload"
	TypeTranscriptionSuccess = "transcription_success"
	TypeTranscriptionFail    = "transcription_fail"
	TypeStop                 = "stop"
)

// New builds a normalized event with id, timestamp and non-nil metadata.
func New(sessionID, eventType, actor string, metadata map[string]any) Event {
	var meta json.RawMessage
	if metadata == nil {
		meta = json.RawMessage(`{}`)
	} else {
		b, err := json.Marshal(metadata)
		if err != nil {
			slog.Warn("event metadata not serializable, dropping", "type", eventType, "error", err)
			b = []byte(`{}`)
		}
		meta = b
	}

	return Event{
		EventID:   uuid.New().String(),
		SessionID: sessionID,
		Type:      eventType,
		Actor:     actor,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize fills in missing fields on an event decoded from the wire.
// It never drops an event.
func Normalize(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, err
	}

	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		slog.Warn("event missing timestamp, using ingestion time", "event_id", e.EventID)
		e.Timestamp = time.Now().UTC()
	}
	if e.Metadata == nil {
		e.Metadata = json.RawMessage(`{}`)
	}

	return e, nil
}

// MetadataField extracts a string field from the metadata JSON.
func (e *Event) MetadataField(key string) string {
	var m map[string]any
	if err := json.Unmarshal(e.Metadata, &m); err != nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
