// Package audio reassembles a session's uploaded payloads into a single
// combined stream.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/recallio/scribe/internal/chunkstore"
	"github.com/recallio/scribe/internal/gaps"
)

// ErrNoChunks is returned only when zero chunks are readable. Partial
// reconstruction is a success with Skipped populated, never an error.
var ErrNoChunks = errors.New("no audio chunks available")

// PayloadStore is the slice of the chunk store the assembler needs.
type PayloadStore interface {
	List(sessionID string) ([]chunkstore.Entry, error)
	Read(sessionID string, seq int) ([]byte, error)
}

// Info reports how complete the reconstruction is. Total counts the expected
// dense range up to the highest observed seq; Skipped lists every seq in that
// range that contributed no bytes, whether missing or unreadable.
type Info struct {
	Total     int   `json:"total_chunks"`
	Available int   `json:"available_chunks"`
	Skipped   []int `json:"skipped"`
}

// Assemble concatenates the session's payloads in seq order. The chunk set is
// listed once up front so a consistent snapshot drives the whole pass even
// while new uploads land.
func Assemble(store PayloadStore, sessionID string) ([]byte, Info, error) {
	entries, err := store.List(sessionID)
	if err != nil {
		return nil, Info{}, fmt.Errorf("list chunks: %w", err)
	}

	seqs := make([]int, len(entries))
	for i, e := range entries {
		seqs[i] = e.Seq
	}
	report := gaps.Detect(seqs)

	skipped := append([]int{}, report.Missing...)

	var buf bytes.Buffer
	available := 0
	for _, e := range entries {
		data, err := store.Read(sessionID, e.Seq)
		if err != nil {
			slog.Warn("chunk unreadable, skipping",
				"session_id", sessionID,
				"seq", e.Seq,
				"error", err,
			)
			skipped = append(skipped, e.Seq)
			continue
		}
		buf.Write(data)
		available++
	}
	sort.Ints(skipped)

	if available == 0 {
		return nil, Info{}, fmt.Errorf("%w: session %s", ErrNoChunks, sessionID)
	}

	return buf.Bytes(), Info{
		Total:     report.ExpectedChunks,
		Available: available,
		Skipped:   skipped,
	}, nil
}
