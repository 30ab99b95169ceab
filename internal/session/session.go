package session

import (
	"errors"
	"time"
)

// Error taxonomy surfaced by the core. The API layer maps these to status
// codes with errors.Is; storage and renderer code wraps them with context.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("operation not allowed in current session state")
	ErrInvalidInput = errors.New("invalid input")
)

type Status string

const (
	StatusRecording  Status = "recording"
	StatusPaused     Status = "paused"
	StatusStopped    Status = "stopped"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// Session is one recording session. Chunks and events are owned exclusively
// by their session: deletes must remove dependents first.
type Session struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner,omitempty"`
	Title      string     `json:"title"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Transcript *string    `json:"transcript,omitempty"`
	Summary    *Summary   `json:"summary,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Summary is the structured document produced by the transcription
// collaborator once a session is fully processed.
type Summary struct {
	ExecutiveSummary string       `json:"executive_summary"`
	KeyPoints        []string     `json:"key_points,omitempty"`
	ActionItems      []ActionItem `json:"action_items,omitempty"`
}

type ActionItem struct {
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "pending"
	ChunkSucceeded ChunkStatus = "succeeded"
	ChunkFailed    ChunkStatus = "failed"
)

// Chunk is one uploaded audio segment. (SessionID, Seq) is unique; seq values
// need not be contiguous at any instant. Text, Speaker and Confidence stay nil
// until the transcription collaborator delivers a result. Once transcribed a
// chunk is immutable except for the review flag.
type Chunk struct {
	SessionID  string      `json:"session_id"`
	Seq        int         `json:"seq"`
	AudioPath  string      `json:"audio_path"`
	DurationMs int64       `json:"duration_ms"`
	Text       *string     `json:"text,omitempty"`
	Speaker    *string     `json:"speaker,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
	Status     ChunkStatus `json:"status"`
	Flagged    bool        `json:"flagged"`
	FlagNote   *string     `json:"flag_note,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Transcribed reports whether the collaborator has delivered text for the chunk.
func (c *Chunk) Transcribed() bool {
	return c.Text != nil
}
