package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewFillsRequiredFields(t *testing.T) {
	e := New("sess-1", TypePause, "maya", map[string]any{"from": "recording"})

	if e.EventID == "" {
		t.Error("missing event ID")
	}
	if e.SessionID != "sess-1" || e.Type != TypePause || e.Actor != "maya" {
		t.Errorf("event = %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("missing timestamp")
	}
	if e.MetadataField("from") != "recording" {
		t.Errorf("metadata = %s", e.Metadata)
	}
}

func TestNewNilMetadata(t *testing.T) {
	e := New("sess-1", TypeStart, "", nil)
	if string(e.Metadata) != "{}" {
		t.Errorf("metadata = %s, want {}", e.Metadata)
	}
}

func TestNormalize(t *testing.T) {
	t.Run("complete event passes through", func(t *testing.T) {
		ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		raw, _ := json.Marshal(Event{
			EventID:   "evt-1",
			SessionID: "sess-1",
			Type:      TypeChunkUpload,
			Metadata:  json.RawMessage(`{"seq":3}`),
			Timestamp: ts,
		})

		e, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if e.EventID != "evt-1" || !e.Timestamp.Equal(ts) {
			t.Errorf("event = %+v", e)
		}
	})

	t.Run("missing fields are filled", func(t *testing.T) {
		e, err := Normalize([]byte(`{"session_id":"sess-1","type":"stop"}`))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if e.EventID == "" {
			t.Error("event ID not generated")
		}
		if e.Timestamp.IsZero() {
			t.Error("timestamp not filled")
		}
		if string(e.Metadata) != "{}" {
			t.Errorf("metadata = %s, want {}", e.Metadata)
		}
	})

	t.Run("malformed JSON is an error", func(t *testing.T) {
		if _, err := Normalize([]byte(`{`)); err == nil {
			t.Error("expected error for malformed JSON")
		}
	})
}

type captureSink struct {
	events []Event
	err    error
}

func (s *captureSink) InsertEvent(_ context.Context, e Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func TestLogRecordPersistsThenPublishes(t *testing.T) {
	sink := &captureSink{}
	var published []string
	log := NewLog(sink, func(subject string, data []byte) error {
		published = append(published, subject)
		return nil
	})

	err := log.Record(context.Background(), New("sess-1", TypeStop, "", nil))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("persisted = %d events, want 1", len(sink.events))
	}
	if len(published) != 1 || published[0] != "scribe.session.stop" {
		t.Errorf("published = %v, want [scribe.session.stop]", published)
	}
}

func TestLogRecordPersistFailureIsAnError(t *testing.T) {
	sink := &captureSink{err: errors.New("db down")}
	publishCalls := 0
	log := NewLog(sink, func(string, []byte) error {
		publishCalls++
		return nil
	})

	err := log.Record(context.Background(), New("sess-1", TypeStart, "", nil))
	if err == nil {
		t.Fatal("expected error when persistence fails")
	}
	if publishCalls != 0 {
		t.Error("event published despite failed persistence")
	}
}

func TestLogRecordPublishFailureIsNotAnError(t *testing.T) {
	sink := &captureSink{}
	log := NewLog(sink, func(string, []byte) error {
		return errors.New("nats gone")
	})

	if err := log.Record(context.Background(), New("sess-1", TypeResume, "", nil)); err != nil {
		t.Errorf("Record = %v, want nil: publish is best-effort", err)
	}
	if len(sink.events) != 1 {
		t.Error("event not persisted")
	}
}

func TestLogRecordNilPublisher(t *testing.T) {
	sink := &captureSink{}
	log := NewLog(sink, nil)

	if err := log.Record(context.Background(), New("sess-1", TypePause, "", nil)); err != nil {
		t.Errorf("Record = %v", err)
	}
}
