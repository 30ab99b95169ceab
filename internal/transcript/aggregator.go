// Package transcript merges chunk-level transcription results into an
// ordered segment list with synthesized timing.
package transcript

import (
	"sort"

	"github.com/recallio/scribe/internal/session"
)

// DefaultNominalChunkMs is the assumed length of one chunk, used to
// synthesize timestamps when explicit timing is absent. An approximation,
// not a precise timing source; it buys reproducible, non-overlapping cues.
const DefaultNominalChunkMs = 5000

// Result is the aggregation output. Chunks without text are dropped from
// Segments but still counted in TotalChunks for completeness metrics.
type Result struct {
	Segments          []Segment
	Speakers          []string
	TotalChunks       int
	TranscribedChunks int
	DurationMs        int64
}

// Aggregate derives the ordered segment list from a session's chunks.
// Timing rule: start = seq * nominalMs, end = start + nominalMs. The same
// rule applies to every chunk so cues never overlap for distinct seqs.
func Aggregate(chunks []session.Chunk, nominalMs int64) Result {
	if nominalMs <= 0 {
		nominalMs = DefaultNominalChunkMs
	}

	ordered := make([]session.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	segments := []Segment{}
	speakerSet := make(map[string]bool)
	var durationMs int64

	for _, c := range ordered {
		if c.Text == nil {
			continue
		}

		start := int64(c.Seq) * nominalMs
		end := start + nominalMs
		if end > durationMs {
			durationMs = end
		}

		seg := Segment{
			Seq:        c.Seq,
			Text:       *c.Text,
			StartMs:    start,
			EndMs:      end,
			Confidence: c.Confidence,
		}
		if c.Speaker != nil {
			seg.Speaker = *c.Speaker
			speakerSet[*c.Speaker] = true
		}
		segments = append(segments, seg)
	}

	speakers := make([]string, 0, len(speakerSet))
	for s := range speakerSet {
		speakers = append(speakers, s)
	}
	sort.Strings(speakers)

	return Result{
		Segments:          segments,
		Speakers:          speakers,
		TotalChunks:       len(ordered),
		TranscribedChunks: len(segments),
		DurationMs:        durationMs,
	}
}

// Build assembles the full transcript value for a session from its chunks.
func Build(s *session.Session, chunks []session.Chunk, nominalMs int64) Transcript {
	res := Aggregate(chunks, nominalMs)
	return Transcript{
		SessionID: s.ID,
		Title:     s.Title,
		Segments:  res.Segments,
		Speakers:  res.Speakers,
		Summary:   s.Summary,
		Metadata: Metadata{
			DurationMs: res.DurationMs,
			CreatedAt:  s.CreatedAt,
		},
	}
}
