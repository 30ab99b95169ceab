package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/recallio/scribe/internal/costs"
	"github.com/recallio/scribe/internal/events"
	"github.com/recallio/scribe/internal/session"
	"github.com/recallio/scribe/internal/store"
)

// MockStore is a thread-safe in-memory implementation of store.DataStore for
// testing. Transition and upsert semantics mirror the SQL store: legality
// checks happen under the same lock as the write.
type MockStore struct {
	mu sync.Mutex

	Sessions map[string]*session.Session
	Chunks   map[string]map[int]*session.Chunk // sessionID -> seq -> chunk
	Events   []events.Event
	Usage    []costs.Record

	UpsertErr      error
	TransitionErr  error
	InsertEventErr error

	UpsertCalls      int
	TransitionCalls  int
	InsertEventCalls int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Sessions: make(map[string]*session.Session),
		Chunks:   make(map[string]map[int]*session.Chunk),
	}
}

func (m *MockStore) CreateSession(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Sessions[s.ID]; exists {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	cp := *s
	m.Sessions[s.ID] = &cp
	return nil
}

func (m *MockStore) GetSession(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", session.ErrNotFound, id)
	}
	cp := *s
	return &cp, nil
}

func (m *MockStore) TransitionSession(_ context.Context, id string, to session.Status, endedAt *time.Time) (session.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TransitionCalls++
	if m.TransitionErr != nil {
		return "", m.TransitionErr
	}

	s, ok := m.Sessions[id]
	if !ok {
		return "", fmt.Errorf("%w: session %s", session.ErrNotFound, id)
	}
	if err := session.ValidateTransition(s.Status, to); err != nil {
		return "", err
	}

	prev := s.Status
	s.Status = to
	if endedAt != nil {
		s.EndedAt = endedAt
	}
	return prev, nil
}

func (m *MockStore) CompleteSession(_ context.Context, id string, transcriptText string, summary *session.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.Sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", session.ErrNotFound, id)
	}
	if s.Status != session.StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", session.ErrInvalidState, s.Status, session.StatusCompleted)
	}
	s.Status = session.StatusCompleted
	s.Transcript = &transcriptText
	s.Summary = summary
	return nil
}

func (m *MockStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Sessions[id]; !ok {
		return fmt.Errorf("%w: session %s", session.ErrNotFound, id)
	}

	// Dependents first.
	kept := m.Events[:0]
	for _, e := range m.Events {
		if e.SessionID != id {
			kept = append(kept, e)
		}
	}
	m.Events = kept
	delete(m.Chunks, id)
	delete(m.Sessions, id)
	return nil
}

func (m *MockStore) UpsertChunk(_ context.Context, c *session.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertErr != nil {
		return m.UpsertErr
	}

	s, ok := m.Sessions[c.SessionID]
	if !ok {
		return fmt.Errorf("%w: session %s", session.ErrNotFound, c.SessionID)
	}
	if err := session.ValidateUpload(s.Status); err != nil {
		return err
	}

	if m.Chunks[c.SessionID] == nil {
		m.Chunks[c.SessionID] = make(map[int]*session.Chunk)
	}
	if existing, ok := m.Chunks[c.SessionID][c.Seq]; ok {
		if existing.Status == session.ChunkSucceeded {
			return nil // transcribed chunks are immutable
		}
		existing.AudioPath = c.AudioPath
		existing.DurationMs = c.DurationMs
		return nil
	}

	cp := *c
	cp.Status = session.ChunkPending
	m.Chunks[c.SessionID][c.Seq] = &cp
	return nil
}

func (m *MockStore) GetChunk(_ context.Context, sessionID string, seq int) (*session.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Chunks[sessionID][seq]
	if !ok {
		return nil, fmt.Errorf("%w: chunk %s/%d", session.ErrNotFound, sessionID, seq)
	}
	cp := *c
	return &cp, nil
}

func (m *MockStore) ListChunks(_ context.Context, sessionID string) ([]session.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunksOrdered(sessionID), nil
}

func (m *MockStore) ListChunkPage(_ context.Context, sessionID string, offset, limit int) (*store.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.chunksOrdered(sessionID)

	page := []session.Chunk{}
	for i := offset; i < len(all) && len(page) < limit; i++ {
		page = append(page, all[i])
	}
	return &store.Page{Chunks: page, Total: len(all), Offset: offset, Limit: limit}, nil
}

func (m *MockStore) ListSeqs(_ context.Context, sessionID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var seqs []int
	for seq := range m.Chunks[sessionID] {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	return seqs, nil
}

func (m *MockStore) SetChunkResult(_ context.Context, sessionID string, seq int, text, speaker *string, confidence *float64, status session.ChunkStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Chunks[sessionID][seq]
	if !ok {
		return fmt.Errorf("%w: chunk %s/%d", session.ErrNotFound, sessionID, seq)
	}
	if c.Status == session.ChunkSucceeded {
		return nil
	}
	c.Text = text
	c.Speaker = speaker
	c.Confidence = confidence
	c.Status = status
	return nil
}

func (m *MockStore) FlagChunk(_ context.Context, sessionID string, seq int, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Chunks[sessionID][seq]
	if !ok {
		return fmt.Errorf("%w: chunk %s/%d", session.ErrNotFound, sessionID, seq)
	}
	c.Flagged = true
	c.FlagNote = &note
	return nil
}

func (m *MockStore) InsertEvent(_ context.Context, e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertEventCalls++
	if m.InsertEventErr != nil {
		return m.InsertEventErr
	}
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockStore) ListEvents(_ context.Context, sessionID string) ([]events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.Event
	for _, e := range m.Events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockStore) InsertUsage(_ context.Context, r costs.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Usage = append(m.Usage, r)
	return nil
}

func (m *MockStore) AggregateUsage(_ context.Context, g costs.Granularity) ([]costs.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buckets := make(map[time.Time]*costs.Bucket)
	for _, r := range m.Usage {
		p := truncate(r.CreatedAt, g)
		b, ok := buckets[p]
		if !ok {
			b = &costs.Bucket{Period: p}
			buckets[p] = b
		}
		b.Calls++
		b.Tokens += r.Tokens
		b.DurationMs += r.DurationMs
		b.CostUSD += r.CostUSD
	}

	out := make([]costs.Bucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

func (m *MockStore) Ping(_ context.Context) error { return nil }

func (m *MockStore) Close() {}

// SetSession seeds a session for testing.
func (m *MockStore) SetSession(s *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.Sessions[s.ID] = &cp
}

// SetChunk seeds a chunk for testing, bypassing upload legality.
func (m *MockStore) SetChunk(c *session.Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Chunks[c.SessionID] == nil {
		m.Chunks[c.SessionID] = make(map[int]*session.Chunk)
	}
	cp := *c
	m.Chunks[c.SessionID][c.Seq] = &cp
}

// EventTypes returns the types of recorded events for a session, in order.
func (m *MockStore) EventTypes(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.Events {
		if e.SessionID == sessionID {
			out = append(out, e.Type)
		}
	}
	return out
}

func (m *MockStore) chunksOrdered(sessionID string) []session.Chunk {
	var seqs []int
	for seq := range m.Chunks[sessionID] {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	out := make([]session.Chunk, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, *m.Chunks[sessionID][seq])
	}
	return out
}

func truncate(t time.Time, g costs.Granularity) time.Time {
	t = t.UTC()
	switch g {
	case costs.GranularityWeek:
		day := t.Truncate(24 * time.Hour)
		// Back up to Monday, matching Postgres date_trunc('week', ...).
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case costs.GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(24 * time.Hour)
	}
}
