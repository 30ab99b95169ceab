// Package results consumes asynchronous transcription collaborator output
// from JetStream and applies it to chunk rows. The collaborator drives the
// speech-to-text call; this side only consumes the result fields.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/recallio/scribe/internal/costs"
	"github.com/recallio/scribe/internal/events"
	"github.com/recallio/scribe/internal/metrics"
	"github.com/recallio/scribe/internal/session"
	"github.com/recallio/scribe/internal/store"
)

const (
	streamName     = "TRANSCRIPTION"
	subjectResults = "scribe.transcription.result.>"
	subjectSummary = "scribe.transcription.summary."
)

// Result is the per-chunk payload published by the transcription collaborator.
type Result struct {
	SessionID  string   `json:"session_id"`
	Seq        int      `json:"seq"`
	Text       *string  `json:"text"`
	Speaker    *string  `json:"speaker,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`

	// Usage facts for the cost collaborator.
	Provider   string  `json:"provider,omitempty"`
	Tokens     int64   `json:"tokens,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
}

// SummaryMsg is published once the collaborator has produced the session's
// final transcript and summary document.
type SummaryMsg struct {
	SessionID  string           `json:"session_id"`
	Transcript string           `json:"transcript"`
	Summary    *session.Summary `json:"summary"`
}

type Consumer struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	store   store.DataStore
	log     *events.Log
	costs   *costs.Recorder
	metrics *metrics.Metrics
	subs    []jetstream.ConsumeContext
}

func New(natsURL string, ds store.DataStore, costRec *costs.Recorder, m *metrics.Metrics) (*Consumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	c := &Consumer{
		nc:      nc,
		js:      js,
		store:   ds,
		costs:   costRec,
		metrics: m,
	}
	c.log = events.NewLog(ds, c.Publish)
	return c, nil
}

// EventLog returns the event log wired to this consumer's NATS connection.
func (c *Consumer) EventLog() *events.Log {
	return c.log
}

// Start ensures the stream exists and binds a durable consumer.
func (c *Consumer) Start() error {
	ctx := context.Background()

	if err := c.ensureStream(ctx); err != nil {
		return err
	}

	consumer, err := c.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Name:          "scribe-results",
		Durable:       "scribe-results",
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    3,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		c.handleMessage(msg)
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.subs = append(c.subs, cc)
	slog.Info("subscribed to transcription results", "stream", streamName)
	return nil
}

func (c *Consumer) ensureStream(ctx context.Context) error {
	if _, err := c.js.Stream(ctx, streamName); err == nil {
		return nil
	}

	_, err := c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"scribe.transcription.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}

	slog.Info("created stream", "name", streamName)
	return nil
}

func (c *Consumer) handleMessage(msg jetstream.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if strings.HasPrefix(msg.Subject(), subjectSummary) {
		c.handleSummary(ctx, msg.Subject(), msg.Data())
	} else {
		c.handleResult(ctx, msg.Subject(), msg.Data())
	}

	// Ack regardless of processing outcome: a message that failed chunk
	// lookup twice will fail a third delivery too, and MaxDeliver caps it.
	if err := msg.Ack(); err != nil {
		slog.Warn("failed to ack message", "subject", msg.Subject(), "error", err)
	}
}

// handleResult applies one per-chunk result. A failed result marks the chunk
// failed and records a transcription_fail event; it never fails the session.
func (c *Consumer) handleResult(ctx context.Context, subject string, data []byte) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("malformed transcription result, skipping", "subject", subject, "error", err)
		return
	}
	if res.SessionID == "" || res.Seq < 0 {
		slog.Warn("transcription result missing session/seq", "subject", subject)
		return
	}

	if res.Confidence != nil && (*res.Confidence < 0 || *res.Confidence > 1) {
		slog.Warn("confidence out of range, dropping field",
			"session_id", res.SessionID,
			"seq", res.Seq,
			"confidence", *res.Confidence,
		)
		res.Confidence = nil
	}

	if res.Error != "" {
		c.applyFailure(ctx, res)
	} else {
		c.applySuccess(ctx, res)
	}

	if c.costs != nil && (res.Tokens > 0 || res.CostUSD > 0) {
		err := c.costs.Track(ctx, costs.Record{
			SessionID:  res.SessionID,
			Provider:   res.Provider,
			Tokens:     res.Tokens,
			DurationMs: res.DurationMs,
			CostUSD:    res.CostUSD,
		})
		if err != nil {
			slog.Warn("failed to track usage", "session_id", res.SessionID, "error", err)
		}
	}
}

func (c *Consumer) applySuccess(ctx context.Context, res Result) {
	err := c.store.SetChunkResult(ctx, res.SessionID, res.Seq, res.Text, res.Speaker, res.Confidence, session.ChunkSucceeded)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			slog.Warn("result for unknown chunk", "session_id", res.SessionID, "seq", res.Seq)
			return
		}
		slog.Error("failed to apply transcription result",
			"session_id", res.SessionID,
			"seq", res.Seq,
			"error", err,
		)
		return
	}

	c.metrics.TranscriptionSuccesses.Inc()
	e := events.New(res.SessionID, events.TypeTranscriptionSuccess, "", map[string]any{"seq": res.Seq})
	if err := c.log.Record(ctx, e); err != nil {
		slog.Error("failed to record event", "type", e.Type, "error", err)
	}
}

func (c *Consumer) applyFailure(ctx context.Context, res Result) {
	err := c.store.SetChunkResult(ctx, res.SessionID, res.Seq, nil, nil, nil, session.ChunkFailed)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		slog.Error("failed to mark chunk failed",
			"session_id", res.SessionID,
			"seq", res.Seq,
			"error", err,
		)
		return
	}

	c.metrics.TranscriptionFailures.Inc()
	e := events.New(res.SessionID, events.TypeTranscriptionFail, "", map[string]any{
		"seq":   res.Seq,
		"error": res.Error,
	})
	if err := c.log.Record(ctx, e); err != nil {
		slog.Error("failed to record event", "type", e.Type, "error", err)
	}
}

// handleSummary moves the session through processing to completed, attaching
// the final transcript and summary. Redeliveries of an already-applied
// summary are no-ops.
func (c *Consumer) handleSummary(ctx context.Context, subject string, data []byte) {
	var sm SummaryMsg
	if err := json.Unmarshal(data, &sm); err != nil {
		slog.Warn("malformed summary message, skipping", "subject", subject, "error", err)
		return
	}
	if sm.SessionID == "" {
		slog.Warn("summary message missing session_id", "subject", subject)
		return
	}

	if _, err := c.store.TransitionSession(ctx, sm.SessionID, session.StatusProcessing, nil); err != nil {
		if !errors.Is(err, session.ErrInvalidState) {
			slog.Error("failed to enter processing", "session_id", sm.SessionID, "error", err)
			return
		}
		// Already processing or completed; fall through for the idempotent
		// complete attempt.
	}

	if err := c.store.CompleteSession(ctx, sm.SessionID, sm.Transcript, sm.Summary); err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			slog.Info("summary already applied", "session_id", sm.SessionID)
			return
		}
		slog.Error("failed to complete session", "session_id", sm.SessionID, "error", err)
		return
	}

	slog.Info("session completed", "session_id", sm.SessionID)
}

// Publish sends a message on the shared NATS connection.
func (c *Consumer) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// Close drains subscriptions and the NATS connection.
func (c *Consumer) Close() {
	for _, cc := range c.subs {
		cc.Stop()
	}
	c.nc.Drain()
}
