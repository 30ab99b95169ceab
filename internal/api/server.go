package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/recallio/scribe/internal/audio"
	"github.com/recallio/scribe/internal/chunkstore"
	"github.com/recallio/scribe/internal/costs"
	"github.com/recallio/scribe/internal/events"
	"github.com/recallio/scribe/internal/export"
	"github.com/recallio/scribe/internal/gaps"
	"github.com/recallio/scribe/internal/metrics"
	"github.com/recallio/scribe/internal/session"
	"github.com/recallio/scribe/internal/store"
	"github.com/recallio/scribe/internal/transcript"
)

// maxChunkBytes caps a single upload body.
const maxChunkBytes = 32 << 20

// PayloadStore is the chunk payload storage consumed by the server.
// Satisfied by *chunkstore.Store.
type PayloadStore interface {
	Put(sessionID string, seq int, data []byte, durationMs int64) (string, error)
	Read(sessionID string, seq int) ([]byte, error)
	List(sessionID string) ([]chunkstore.Entry, error)
	DeleteSession(sessionID string) error
}

type Options struct {
	Port           int
	NominalChunkMs int64
	PageSize       int
}

type Server struct {
	store    store.DataStore
	chunks   PayloadStore
	eventLog *events.Log
	costs    *costs.Recorder
	metrics  *metrics.Metrics
	router   chi.Router
	opts     Options
}

func NewServer(ds store.DataStore, chunks PayloadStore, log *events.Log, costRec *costs.Recorder, m *metrics.Metrics, promHandler http.Handler, opts Options) *Server {
	if opts.NominalChunkMs <= 0 {
		opts.NominalChunkMs = transcript.DefaultNominalChunkMs
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}

	srv := &Server{
		store:    ds,
		chunks:   chunks,
		eventLog: log,
		costs:    costRec,
		metrics:  m,
		opts:     opts,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", srv.handleHealth)
		r.Get("/usage", srv.handleUsage)

		r.Post("/sessions", srv.handleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", srv.handleGetSession)
			r.Delete("/", srv.handleDeleteSession)
			r.Post("/pause", srv.transitionHandler(session.StatusPaused, events.TypePause))
			r.Post("/resume", srv.transitionHandler(session.StatusRecording, events.TypeResume))
			r.Post("/stop", srv.transitionHandler(session.StatusStopped, events.TypeStop))
			r.Post("/chunks", srv.handleUploadChunk)
			r.Get("/chunks/missing", srv.handleMissingChunks)
			r.Post("/chunks/{seq}/flag", srv.handleFlagChunk)
			r.Get("/audio", srv.handleAudio)
			r.Get("/export", srv.handleExport)
		})
	})
	if promHandler != nil {
		r.Handle("/metrics", promHandler)
	}

	srv.router = r
	return srv
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	slog.Info("starting HTTP API", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"service": "scribe",
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Owner string `json:"owner"`
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}

	now := time.Now().UTC()
	sess := &session.Session{
		ID:        uuid.New().String(),
		Owner:     req.Owner,
		Title:     req.Title,
		Status:    session.StatusRecording,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		s.writeError(w, fmt.Errorf("create session: %w", err))
		return
	}

	s.recordEvent(r, events.New(sess.ID, events.TypeStart, req.Actor, nil))
	s.metrics.ActiveSessions.Inc()

	writeJSON(w, http.StatusCreated, sess)
}

// transitionHandler builds a lifecycle handler for one target status.
// The store applies the legality check and the status write atomically.
func (s *Server) transitionHandler(target session.Status, eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")

		var endedAt *time.Time
		if target == session.StatusStopped {
			now := time.Now().UTC()
			endedAt = &now
		}

		prev, err := s.store.TransitionSession(r.Context(), id, target, endedAt)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.recordEvent(r, events.New(id, eventType, r.URL.Query().Get("actor"), map[string]any{
			"from": string(prev),
			"to":   string(target),
		}))
		if target == session.StatusStopped {
			s.metrics.ActiveSessions.Dec()
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"id":     id,
			"status": string(target),
		})
	}
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	seqStr := r.URL.Query().Get("seq")
	if seqStr == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "seq is required"})
		return
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil || seq < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "seq must be a non-negative integer"})
		return
	}

	var durationMs int64
	if d := r.URL.Query().Get("duration_ms"); d != "" {
		durationMs, err = strconv.ParseInt(d, 10, 64)
		if err != nil || durationMs < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration_ms must be a non-negative integer"})
			return
		}
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("audio payload exceeds %d bytes", maxChunkBytes),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty audio payload"})
		return
	}

	// Row first: the store upsert carries the upload legality guard, so an
	// illegal upload leaves no chunk record and no payload behind.
	chunk := &session.Chunk{
		SessionID:  id,
		Seq:        seq,
		AudioPath:  chunkstore.Ref(id, seq),
		DurationMs: durationMs,
		Status:     session.ChunkPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.UpsertChunk(r.Context(), chunk); err != nil {
		s.writeError(w, err)
		return
	}

	path, err := s.chunks.Put(id, seq, data, durationMs)
	if err != nil {
		s.writeError(w, fmt.Errorf("store payload: %w", err))
		return
	}

	s.recordEvent(r, events.New(id, events.TypeChunkUpload, "", map[string]any{
		"seq":  seq,
		"size": len(data),
	}))
	s.metrics.ChunksUploaded.Inc()
	s.metrics.ChunkBytes.Observe(float64(len(data)))

	writeJSON(w, http.StatusCreated, map[string]any{
		"path": path,
		"seq":  seq,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	limit := s.opts.PageSize
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			page = n
		}
	}

	chunkPage, err := s.store.ListChunkPage(r.Context(), id, page*limit, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"chunks":  chunkPage,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Rows first (events, chunks, session in one transaction), payloads after:
	// an orphaned payload is garbage to collect, an orphaned row is a lie.
	if err := s.store.DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	// A session deleted mid-recording never passes through stop, so the
	// gauge must come down here.
	if sess.Status == session.StatusRecording || sess.Status == session.StatusPaused {
		s.metrics.ActiveSessions.Dec()
	}
	if err := s.chunks.DeleteSession(id); err != nil {
		slog.Warn("failed to delete chunk payloads", "session_id", id, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMissingChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	seqs, err := s.store.ListSeqs(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.metrics.GapReports.Inc()
	writeJSON(w, http.StatusOK, gaps.Detect(seqs))
}

func (s *Server) handleFlagChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	seq, err := strconv.Atoi(chi.URLParam(r, "seq"))
	if err != nil || seq < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "seq must be a non-negative integer"})
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if err := s.store.FlagChunk(r.Context(), id, seq, req.Note); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	data, info, err := audio.Assemble(s.chunks, id)
	if err != nil {
		if errors.Is(err, audio.ErrNoChunks) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no audio chunks available"})
			return
		}
		s.writeError(w, err)
		return
	}

	s.metrics.AudioAssemblies.Inc()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Chunks-Total", strconv.Itoa(info.Total))
	w.Header().Set("X-Chunks-Available", strconv.Itoa(info.Available))
	w.Header().Set("X-Chunks-Missing", strconv.Itoa(len(info.Skipped)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	chunks, err := s.store.ListChunks(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tr := transcript.Build(sess, chunks, s.opts.NominalChunkMs)
	out, err := export.Render(tr, format)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.metrics.ExportsRendered.WithLabelValues(string(format)).Inc()

	w.Header().Set("Content-Type", format.MIME())
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, out)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	g := r.URL.Query().Get("granularity")
	if g == "" {
		g = string(costs.GranularityDay)
	}
	granularity, err := costs.ParseGranularity(g)
	if err != nil {
		s.writeError(w, err)
		return
	}

	buckets, err := s.costs.Report(r.Context(), granularity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if buckets == nil {
		buckets = []costs.Bucket{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *Server) recordEvent(r *http.Request, e events.Event) {
	if err := s.eventLog.Record(r.Context(), e); err != nil {
		slog.Error("failed to record event", "type", e.Type, "session_id", e.SessionID, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidState):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidInput), errors.Is(err, export.ErrUnsupportedFormat):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
