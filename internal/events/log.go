package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Sink persists events. Uses a narrow interface to avoid an import cycle
// with the store package.
type Sink interface {
	InsertEvent(ctx context.Context, e Event) error
}

// PublishFunc is the callback signature for publishing to NATS.
type PublishFunc func(subject string, data []byte) error

// Log is the append-only event log: every accepted event is persisted, then
// published best-effort for downstream watchers. Persistence failures are
// errors; publish failures are not.
type Log struct {
	sink    Sink
	publish PublishFunc
}

func NewLog(sink Sink, publish PublishFunc) *Log {
	return &Log{sink: sink, publish: publish}
}

// Record appends the event to the log.
func (l *Log) Record(ctx context.Context, e Event) error {
	if err := l.sink.InsertEvent(ctx, e); err != nil {
		return fmt.Errorf("record event %s: %w", e.Type, err)
	}

	if l.publish != nil {
		payload, err := json.Marshal(e)
		if err != nil {
			slog.Warn("event not publishable", "type", e.Type, "error", err)
			return nil
		}
		subject := "scribe.session." + e.Type
		if err := l.publish(subject, payload); err != nil {
			slog.Warn("failed to publish event", "subject", subject, "error", err)
		}
	}
	return nil
}
