package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recallio/scribe/internal/costs"
	"github.com/recallio/scribe/internal/events"
	"github.com/recallio/scribe/internal/session"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS recording_sessions (
	id          UUID PRIMARY KEY,
	owner       TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ,
	transcript  TEXT,
	summary     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transcript_chunks (
	session_id  UUID NOT NULL REFERENCES recording_sessions(id),
	seq         INTEGER NOT NULL CHECK (seq >= 0),
	audio_path  TEXT NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	text        TEXT,
	speaker     TEXT,
	confidence  DOUBLE PRECISION CHECK (confidence >= 0 AND confidence <= 1),
	status      TEXT NOT NULL DEFAULT 'pending',
	flagged     BOOLEAN NOT NULL DEFAULT false,
	flag_note   TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS recording_events (
	event_id    UUID PRIMARY KEY,
	session_id  UUID NOT NULL,
	type        TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	metadata    JSONB NOT NULL DEFAULT '{}',
	timestamp   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS recording_events_session_ts
	ON recording_events (session_id, timestamp);

CREATE TABLE IF NOT EXISTS usage_records (
	id          UUID PRIMARY KEY,
	session_id  UUID NOT NULL,
	provider    TEXT NOT NULL,
	tokens      BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess *session.Session) error {
	summary, err := marshalSummary(sess.Summary)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO recording_sessions (id, owner, title, status, started_at, ended_at, transcript, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sess.ID, sess.Owner, sess.Title, string(sess.Status), sess.StartedAt, sess.EndedAt, sess.Transcript, summary, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner, title, status, started_at, ended_at, transcript, summary, created_at
		FROM recording_sessions WHERE id = $1
	`, id)
	return scanSession(row)
}

// TransitionSession applies the status move under a row lock so the legality
// check and the write see the same committed row. Two concurrent requests for
// the same transition serialize on the lock; the loser re-reads the new
// status and is rejected rather than silently re-applied.
func (s *Store) TransitionSession(ctx context.Context, id string, to session.Status, endedAt *time.Time) (session.Status, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	var prev string
	err = tx.QueryRow(ctx,
		`SELECT status FROM recording_sessions WHERE id = $1 FOR UPDATE`, id,
	).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: session %s", session.ErrNotFound, id)
		}
		return "", fmt.Errorf("transition session: %w", err)
	}

	if err := session.ValidateTransition(session.Status(prev), to); err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
		UPDATE recording_sessions
		SET status = $2, ended_at = COALESCE($3, ended_at)
		WHERE id = $1
	`, id, string(to), endedAt)
	if err != nil {
		return "", fmt.Errorf("transition session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit transition: %w", err)
	}
	return session.Status(prev), nil
}

func (s *Store) classifyTransitionFailure(ctx context.Context, id string, to session.Status) error {
	cur, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", session.ErrInvalidState, cur.Status, to)
}

func (s *Store) CompleteSession(ctx context.Context, id string, transcriptText string, summary *session.Summary) error {
	sm, err := marshalSummary(summary)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE recording_sessions
		SET status = $2, transcript = $3, summary = $4
		WHERE id = $1 AND status = $5
	`, id, string(session.StatusCompleted), transcriptText, sm, string(session.StatusProcessing))
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyTransitionFailure(ctx, id, session.StatusCompleted)
	}
	return nil
}

// DeleteSession removes dependents before the session row, all in one
// transaction, so referential integrity holds at every point.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM recording_events WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM transcript_chunks WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM recording_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s", session.ErrNotFound, id)
	}

	return tx.Commit(ctx)
}

// UpsertChunk inserts the chunk, or on a (session_id, seq) conflict refreshes
// the payload fields. The EXISTS clause is the upload legality guard, atomic
// with the write. A chunk that already succeeded transcription is left
// untouched; the duplicate delivery is then a no-op, not an error.
func (s *Store) UpsertChunk(ctx context.Context, c *session.Chunk) error {
	allowed := statusStrings([]session.Status{session.StatusRecording, session.StatusPaused})

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO transcript_chunks (session_id, seq, audio_path, duration_ms, status, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (SELECT 1 FROM recording_sessions WHERE id = $1 AND status = ANY($7))
		ON CONFLICT (session_id, seq) DO UPDATE
		SET audio_path = EXCLUDED.audio_path, duration_ms = EXCLUDED.duration_ms
		WHERE transcript_chunks.status <> 'succeeded'
	`, c.SessionID, c.Seq, c.AudioPath, c.DurationMs, string(session.ChunkPending), c.CreatedAt, allowed)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}

	if tag.RowsAffected() == 0 {
		sess, err := s.GetSession(ctx, c.SessionID)
		if err != nil {
			return err
		}
		if err := session.ValidateUpload(sess.Status); err != nil {
			return err
		}
		// Conflict with a transcribed chunk: duplicate delivery, keep it.
	}
	return nil
}

func (s *Store) GetChunk(ctx context.Context, sessionID string, seq int) (*session.Chunk, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, seq, audio_path, duration_ms, text, speaker, confidence, status, flagged, flag_note, created_at
		FROM transcript_chunks WHERE session_id = $1 AND seq = $2
	`, sessionID, seq)

	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: chunk %s/%d", session.ErrNotFound, sessionID, seq)
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) ListChunks(ctx context.Context, sessionID string) ([]session.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, seq, audio_path, duration_ms, text, speaker, confidence, status, flagged, flag_note, created_at
		FROM transcript_chunks WHERE session_id = $1 ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (s *Store) ListChunkPage(ctx context.Context, sessionID string, offset, limit int) (*Page, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM transcript_chunks WHERE session_id = $1`, sessionID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT session_id, seq, audio_path, duration_ms, text, speaker, confidence, status, flagged, flag_note, created_at
		FROM transcript_chunks WHERE session_id = $1 ORDER BY seq
		OFFSET $2 LIMIT $3
	`, sessionID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("page chunks: %w", err)
	}
	defer rows.Close()

	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}
	return &Page{Chunks: chunks, Total: total, Offset: offset, Limit: limit}, nil
}

func (s *Store) ListSeqs(ctx context.Context, sessionID string) ([]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq FROM transcript_chunks WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list seqs: %w", err)
	}
	defer rows.Close()

	var seqs []int
	for rows.Next() {
		var seq int
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}

// SetChunkResult records a transcription outcome. Succeeded chunks are
// immutable; pending and failed ones may still receive (re)results.
func (s *Store) SetChunkResult(ctx context.Context, sessionID string, seq int, text, speaker *string, confidence *float64, status session.ChunkStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transcript_chunks
		SET text = $3, speaker = $4, confidence = $5, status = $6
		WHERE session_id = $1 AND seq = $2 AND status <> 'succeeded'
	`, sessionID, seq, text, speaker, confidence, string(status))
	if err != nil {
		return fmt.Errorf("set chunk result: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.GetChunk(ctx, sessionID, seq); err != nil {
			return err
		}
		// Already succeeded; duplicate result delivery is a no-op.
	}
	return nil
}

func (s *Store) FlagChunk(ctx context.Context, sessionID string, seq int, note string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transcript_chunks SET flagged = true, flag_note = $3
		WHERE session_id = $1 AND seq = $2
	`, sessionID, seq, note)
	if err != nil {
		return fmt.Errorf("flag chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: chunk %s/%d", session.ErrNotFound, sessionID, seq)
	}
	return nil
}

func (s *Store) InsertEvent(ctx context.Context, e events.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recording_events (event_id, session_id, type, actor, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`, e.EventID, e.SessionID, e.Type, e.Actor, e.Metadata, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]events.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, session_id, type, actor, metadata, timestamp
		FROM recording_events WHERE session_id = $1 ORDER BY timestamp
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		if err := rows.Scan(&e.EventID, &e.SessionID, &e.Type, &e.Actor, &e.Metadata, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) InsertUsage(ctx context.Context, r costs.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_records (id, session_id, provider, tokens, duration_ms, cost_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.SessionID, r.Provider, r.Tokens, r.DurationMs, r.CostUSD, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

func (s *Store) AggregateUsage(ctx context.Context, g costs.Granularity) ([]costs.Bucket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date_trunc($1, created_at) AS period,
		       count(*), sum(tokens), sum(duration_ms), sum(cost_usd)
		FROM usage_records
		GROUP BY period ORDER BY period
	`, string(g))
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}
	defer rows.Close()

	var out []costs.Bucket
	for rows.Next() {
		var b costs.Bucket
		if err := rows.Scan(&b.Period, &b.Calls, &b.Tokens, &b.DurationMs, &b.CostUSD); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func statusStrings(statuses []session.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func marshalSummary(sm *session.Summary) ([]byte, error) {
	if sm == nil {
		return nil, nil
	}
	b, err := json.Marshal(sm)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return b, nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		sess        session.Session
		status      string
		summaryJSON []byte
	)
	err := row.Scan(&sess.ID, &sess.Owner, &sess.Title, &status, &sess.StartedAt,
		&sess.EndedAt, &sess.Transcript, &summaryJSON, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: session", session.ErrNotFound)
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.Status = session.Status(status)
	if summaryJSON != nil {
		var sm session.Summary
		if err := json.Unmarshal(summaryJSON, &sm); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		sess.Summary = &sm
	}
	return &sess, nil
}

func scanChunk(row pgx.Row) (*session.Chunk, error) {
	var (
		c      session.Chunk
		status string
	)
	err := row.Scan(&c.SessionID, &c.Seq, &c.AudioPath, &c.DurationMs, &c.Text,
		&c.Speaker, &c.Confidence, &status, &c.Flagged, &c.FlagNote, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = session.ChunkStatus(status)
	return &c, nil
}

func collectChunks(rows pgx.Rows) ([]session.Chunk, error) {
	chunks := []session.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}
