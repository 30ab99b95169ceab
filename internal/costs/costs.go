// Package costs records immutable per-call usage facts and exposes periodic
// aggregates. The core only ever appends facts; persistence and rollup belong
// to the store. Not required for correctness of ingestion or export.
package costs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/recallio/scribe/internal/session"
)

// Record is one usage fact for a collaborator call.
type Record struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Provider   string    `json:"provider"`
	Tokens     int64     `json:"tokens"`
	DurationMs int64     `json:"duration_ms"`
	CostUSD    float64   `json:"cost_usd"`
	CreatedAt  time.Time `json:"created_at"`
}

type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity validates a requested aggregation granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("%w: granularity %q", session.ErrInvalidInput, s)
	}
}

// Bucket is one period of the aggregate.
type Bucket struct {
	Period     time.Time `json:"period"`
	Calls      int64     `json:"calls"`
	Tokens     int64     `json:"tokens"`
	DurationMs int64     `json:"duration_ms"`
	CostUSD    float64   `json:"cost_usd"`
}

// Store is the slice of the data store the recorder needs.
type Store interface {
	InsertUsage(ctx context.Context, r Record) error
	AggregateUsage(ctx context.Context, g Granularity) ([]Bucket, error)
}

type Recorder struct {
	store Store
}

func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s}
}

// Track appends one usage fact, filling id and timestamp.
func (r *Recorder) Track(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := r.store.InsertUsage(ctx, rec); err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Report returns the periodic aggregate at the requested granularity.
func (r *Recorder) Report(ctx context.Context, g Granularity) ([]Bucket, error) {
	return r.store.AggregateUsage(ctx, g)
}
