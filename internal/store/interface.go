package store

import (
	"context"
	"time"

	"github.com/recallio/scribe/internal/costs"
	"github.com/recallio/scribe/internal/events"
	"github.com/recallio/scribe/internal/session"
)

// Page is one page of a session's chunks plus the total count.
type Page struct {
	Chunks []session.Chunk `json:"chunks"`
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

// DataStore is the interface consumed by the API, the result consumer, and
// the cost recorder. The concrete implementation is *Store (pgx-backed);
// tests use testutil.MockStore.
type DataStore interface {
	CreateSession(ctx context.Context, s *session.Session) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	// TransitionSession applies a conditional status update: the legality
	// check and the write are atomic with respect to other transitions on
	// the same session. Returns the previous status on success;
	// ErrNotFound / ErrInvalidState otherwise.
	TransitionSession(ctx context.Context, id string, to session.Status, endedAt *time.Time) (session.Status, error)
	// CompleteSession moves processing -> completed and attaches the final
	// transcript text and summary in the same conditional statement.
	CompleteSession(ctx context.Context, id string, transcriptText string, summary *session.Summary) error
	// DeleteSession removes events and chunks before the session row,
	// in one transaction.
	DeleteSession(ctx context.Context, id string) error

	// UpsertChunk inserts or overwrites the chunk for (session, seq),
	// guarded on the session accepting uploads. A chunk that already holds
	// a transcription result keeps it; only payload metadata is refreshed.
	UpsertChunk(ctx context.Context, c *session.Chunk) error
	GetChunk(ctx context.Context, sessionID string, seq int) (*session.Chunk, error)
	ListChunks(ctx context.Context, sessionID string) ([]session.Chunk, error)
	ListChunkPage(ctx context.Context, sessionID string, offset, limit int) (*Page, error)
	ListSeqs(ctx context.Context, sessionID string) ([]int, error)
	// SetChunkResult records a transcription outcome. Succeeds only while
	// the chunk is still pending: chunks are immutable once transcribed.
	SetChunkResult(ctx context.Context, sessionID string, seq int, text, speaker *string, confidence *float64, status session.ChunkStatus) error
	FlagChunk(ctx context.Context, sessionID string, seq int, note string) error

	InsertEvent(ctx context.Context, e events.Event) error
	ListEvents(ctx context.Context, sessionID string) ([]events.Event, error)

	InsertUsage(ctx context.Context, r costs.Record) error
	AggregateUsage(ctx context.Context, g costs.Granularity) ([]costs.Bucket, error)

	Ping(ctx context.Context) error
	Close()
}
