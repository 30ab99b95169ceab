package transcript

import (
	"time"

	"github.com/recallio/scribe/internal/session"
)

// Segment is a derived, time-bounded unit of transcript text. Segments are
// recomputed from the chunk set on every read and never persisted, keeping
// chunk storage the single source of truth.
type Segment struct {
	Seq        int      `json:"seq"`
	Text       string   `json:"text"`
	Speaker    string   `json:"speaker,omitempty"`
	StartMs    int64    `json:"start_ms"`
	EndMs      int64    `json:"end_ms"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Metadata carries the rendering context for a transcript.
type Metadata struct {
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Transcript is the full rendered transcript value handed to the exporters.
// Its JSON serialization is the canonical lossless export format.
type Transcript struct {
	SessionID string           `json:"session_id"`
	Title     string           `json:"title"`
	Segments  []Segment        `json:"segments"`
	Speakers  []string         `json:"speakers"`
	Summary   *session.Summary `json:"summary,omitempty"`
	Metadata  Metadata         `json:"metadata"`
}
