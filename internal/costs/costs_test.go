package costs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/recallio/scribe/internal/session"
)

type memStore struct {
	records []Record
}

func (m *memStore) InsertUsage(_ context.Context, r Record) error {
	m.records = append(m.records, r)
	return nil
}

func (m *memStore) AggregateUsage(_ context.Context, _ Granularity) ([]Bucket, error) {
	return nil, nil
}

func TestParseGranularity(t *testing.T) {
	for _, valid := range []string{"day", "week", "month"} {
		g, err := ParseGranularity(valid)
		if err != nil {
			t.Errorf("ParseGranularity(%q) = %v", valid, err)
		}
		if string(g) != valid {
			t.Errorf("ParseGranularity(%q) = %q", valid, g)
		}
	}

	for _, invalid := range []string{"", "hour", "year", "Day"} {
		_, err := ParseGranularity(invalid)
		if !errors.Is(err, session.ErrInvalidInput) {
			t.Errorf("ParseGranularity(%q) = %v, want ErrInvalidInput", invalid, err)
		}
	}
}

func TestTrackFillsIDAndTimestamp(t *testing.T) {
	ms := &memStore{}
	rec := NewRecorder(ms)

	err := rec.Track(context.Background(), Record{
		SessionID: "sess-1",
		Provider:  "whisper",
		Tokens:    120,
		CostUSD:   0.002,
	})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}

	if len(ms.records) != 1 {
		t.Fatalf("records = %d, want 1", len(ms.records))
	}
	got := ms.records[0]
	if got.ID == "" {
		t.Error("ID not generated")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestTrackKeepsProvidedFields(t *testing.T) {
	ms := &memStore{}
	rec := NewRecorder(ms)

	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	err := rec.Track(context.Background(), Record{
		ID:        "rec-1",
		SessionID: "sess-1",
		CreatedAt: ts,
	})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}

	got := ms.records[0]
	if got.ID != "rec-1" || !got.CreatedAt.Equal(ts) {
		t.Errorf("record = %+v, want provided id and timestamp kept", got)
	}
}
