package transcript

import (
	"reflect"
	"testing"
	"time"

	"github.com/recallio/scribe/internal/session"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func chunk(seq int, text *string, speaker *string, conf *float64) session.Chunk {
	return session.Chunk{
		SessionID:  "sess-1",
		Seq:        seq,
		Text:       text,
		Speaker:    speaker,
		Confidence: conf,
		Status:     session.ChunkSucceeded,
	}
}

func TestAggregate_TimingSynthesis(t *testing.T) {
	chunks := []session.Chunk{
		chunk(0, strPtr("Hello"), nil, f64Ptr(0.95)),
		chunk(1, nil, nil, nil),
		chunk(2, strPtr("world"), nil, f64Ptr(0.6)),
	}

	res := Aggregate(chunks, 5000)

	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments (null text dropped), got %d", len(res.Segments))
	}
	if res.TotalChunks != 3 {
		t.Errorf("expected 3 total chunks, got %d", res.TotalChunks)
	}
	if res.TranscribedChunks != 2 {
		t.Errorf("expected 2 transcribed chunks, got %d", res.TranscribedChunks)
	}

	seg0 := res.Segments[0]
	if seg0.Text != "Hello" || seg0.StartMs != 0 || seg0.EndMs != 5000 {
		t.Errorf("unexpected segment 0: %+v", seg0)
	}
	seg1 := res.Segments[1]
	if seg1.Text != "world" || seg1.StartMs != 10000 || seg1.EndMs != 15000 {
		t.Errorf("unexpected segment 1: %+v", seg1)
	}
	if res.DurationMs != 15000 {
		t.Errorf("expected duration 15000, got %d", res.DurationMs)
	}
}

func TestAggregate_DefaultNominal(t *testing.T) {
	res := Aggregate([]session.Chunk{chunk(1, strPtr("x"), nil, nil)}, 0)
	if res.Segments[0].StartMs != DefaultNominalChunkMs {
		t.Errorf("expected default nominal %d, got start %d", DefaultNominalChunkMs, res.Segments[0].StartMs)
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	ordered := []session.Chunk{
		chunk(0, strPtr("a"), nil, nil),
		chunk(1, strPtr("b"), nil, nil),
		chunk(2, strPtr("c"), nil, nil),
	}
	shuffled := []session.Chunk{ordered[2], ordered[0], ordered[1]}

	a := Aggregate(ordered, 5000)
	b := Aggregate(shuffled, 5000)
	if !reflect.DeepEqual(a.Segments, b.Segments) {
		t.Errorf("aggregation depends on input order:\n%+v\n%+v", a.Segments, b.Segments)
	}
}

func TestAggregate_NonDecreasingTimestamps(t *testing.T) {
	chunks := []session.Chunk{
		chunk(0, strPtr("a"), nil, nil),
		chunk(3, strPtr("b"), nil, nil),
		chunk(7, strPtr("c"), nil, nil),
	}
	res := Aggregate(chunks, 5000)
	for i := 1; i < len(res.Segments); i++ {
		prev, cur := res.Segments[i-1], res.Segments[i]
		if cur.StartMs < prev.EndMs {
			t.Errorf("overlapping cues: segment %d ends %d, segment %d starts %d",
				i-1, prev.EndMs, i, cur.StartMs)
		}
	}
}

func TestAggregate_Speakers(t *testing.T) {
	chunks := []session.Chunk{
		chunk(0, strPtr("hi"), strPtr("Bob"), nil),
		chunk(1, strPtr("hey"), strPtr("Alice"), nil),
		chunk(2, strPtr("yes"), strPtr("Bob"), nil),
		chunk(3, strPtr("mm"), nil, nil),
	}
	res := Aggregate(chunks, 5000)
	want := []string{"Alice", "Bob"}
	if !reflect.DeepEqual(res.Speakers, want) {
		t.Errorf("expected speakers %v, got %v", want, res.Speakers)
	}
}

func TestAggregate_Empty(t *testing.T) {
	res := Aggregate(nil, 5000)
	if len(res.Segments) != 0 || res.TotalChunks != 0 || res.DurationMs != 0 {
		t.Errorf("unexpected result for empty input: %+v", res)
	}
	if res.Segments == nil {
		t.Error("segments must be an empty slice, not nil")
	}
}

func TestBuild(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := &session.Session{
		ID:        "sess-1",
		Title:     "Standup",
		Status:    session.StatusCompleted,
		CreatedAt: created,
		Summary:   &session.Summary{ExecutiveSummary: "short one"},
	}
	chunks := []session.Chunk{
		chunk(0, strPtr("Hello"), strPtr("Ana"), f64Ptr(0.9)),
	}

	tr := Build(s, chunks, 5000)
	if tr.SessionID != "sess-1" || tr.Title != "Standup" {
		t.Errorf("unexpected identity fields: %+v", tr)
	}
	if tr.Metadata.DurationMs != 5000 {
		t.Errorf("expected duration 5000, got %d", tr.Metadata.DurationMs)
	}
	if !tr.Metadata.CreatedAt.Equal(created) {
		t.Errorf("unexpected created_at: %v", tr.Metadata.CreatedAt)
	}
	if tr.Summary == nil || tr.Summary.ExecutiveSummary != "short one" {
		t.Errorf("summary not carried through: %+v", tr.Summary)
	}
	if !reflect.DeepEqual(tr.Speakers, []string{"Ana"}) {
		t.Errorf("unexpected speakers: %v", tr.Speakers)
	}
}
