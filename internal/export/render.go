// Package export renders transcript values into the supported text formats.
// Every renderer is a pure total function: zero segments produce headers and
// an empty body, and missing optional fields are omitted, never rendered as
// empty placeholders.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recallio/scribe/internal/transcript"
)

// TxtOptions controls the plain-text renderer. Zero value is not the
// default; use DefaultTxtOptions.
type TxtOptions struct {
	IncludeSpeakers   bool
	IncludeTimestamps bool
	IncludeConfidence bool
}

func DefaultTxtOptions() TxtOptions {
	return TxtOptions{IncludeSpeakers: true}
}

// Render dispatches to the renderer for the format. TXT uses default options;
// callers needing variants call RenderTXT directly.
func Render(tr transcript.Transcript, f Format) (string, error) {
	switch f {
	case FormatSRT:
		return RenderSRT(tr), nil
	case FormatVTT:
		return RenderVTT(tr), nil
	case FormatJSON:
		return RenderJSON(tr)
	case FormatTXT:
		return RenderTXT(tr, DefaultTxtOptions()), nil
	case FormatMarkdown:
		return RenderMarkdown(tr), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// RenderSRT emits SubRip cues: 1-based index, comma-decimal timestamps,
// optional "speaker: " prefix.
func RenderSRT(tr transcript.Transcript) string {
	var b strings.Builder
	for i, seg := range tr.Segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(seg.StartMs, ","), formatTimestamp(seg.EndMs, ","))
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "%s: %s\n\n", seg.Speaker, seg.Text)
		} else {
			fmt.Fprintf(&b, "%s\n\n", seg.Text)
		}
	}
	return b.String()
}

// RenderVTT emits WebVTT: header, optional NOTE with the title, then cues
// with dot-decimal timestamps and <v speaker> voice tags.
func RenderVTT(tr transcript.Transcript) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	if tr.Title != "" {
		fmt.Fprintf(&b, "NOTE %s\n\n", tr.Title)
	}
	for i, seg := range tr.Segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(seg.StartMs, "."), formatTimestamp(seg.EndMs, "."))
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "<v %s>%s\n\n", seg.Speaker, seg.Text)
		} else {
			fmt.Fprintf(&b, "%s\n\n", seg.Text)
		}
	}
	return b.String()
}

// RenderJSON serializes the full transcript value verbatim. This is the
// canonical lossless format.
func RenderJSON(tr transcript.Transcript) (string, error) {
	out, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	return string(out), nil
}

// RenderTXT emits one line per segment: optional bracketed timestamp,
// optional speaker with trailing colon, optional confidence percentage, then
// the text, space-joined in that order.
func RenderTXT(tr transcript.Transcript, opts TxtOptions) string {
	var b strings.Builder
	for _, seg := range tr.Segments {
		var fields []string
		if opts.IncludeTimestamps {
			fields = append(fields, fmt.Sprintf("[%s]", formatTimestamp(seg.StartMs, ".")))
		}
		if opts.IncludeSpeakers && seg.Speaker != "" {
			fields = append(fields, seg.Speaker+":")
		}
		if opts.IncludeConfidence && seg.Confidence != nil {
			fields = append(fields, fmt.Sprintf("(%.0f%%)", *seg.Confidence*100))
		}
		fields = append(fields, seg.Text)
		b.WriteString(strings.Join(fields, " "))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderMarkdown emits a document with title, metadata, the transcript body,
// and the summary section when a summary is present.
func RenderMarkdown(tr transcript.Transcript) string {
	var b strings.Builder

	title := tr.Title
	if title == "" {
		title = "Recording Transcript"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	b.WriteString("## Metadata\n\n")
	if !tr.Metadata.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Date: %s\n", tr.Metadata.CreatedAt.Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&b, "- Duration: %s\n", formatDuration(tr.Metadata.DurationMs))
	if len(tr.Speakers) > 0 {
		fmt.Fprintf(&b, "- Speakers: %s\n", strings.Join(tr.Speakers, ", "))
	}
	b.WriteString("\n## Transcript\n\n")

	for _, seg := range tr.Segments {
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "**%s:** %s\n\n", seg.Speaker, seg.Text)
		} else {
			fmt.Fprintf(&b, "%s\n\n", seg.Text)
		}
	}

	if tr.Summary != nil {
		b.WriteString("## Summary\n\n")
		if tr.Summary.ExecutiveSummary != "" {
			fmt.Fprintf(&b, "%s\n\n", tr.Summary.ExecutiveSummary)
		}
		if len(tr.Summary.KeyPoints) > 0 {
			b.WriteString("### Key Points\n\n")
			for _, p := range tr.Summary.KeyPoints {
				fmt.Fprintf(&b, "- %s\n", p)
			}
			b.WriteString("\n")
		}
		if len(tr.Summary.ActionItems) > 0 {
			b.WriteString("### Action Items\n\n")
			for _, item := range tr.Summary.ActionItems {
				who := item.Speaker
				if who == "" {
					who = "Team"
				}
				fmt.Fprintf(&b, "- **%s:** %s\n", who, item.Text)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// formatTimestamp renders milliseconds as HH:MM:SS<sep>mmm via integer
// division, zero-padded to 2/2/2/3 digits.
func formatTimestamp(ms int64, sep string) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	rem := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, rem)
}

// formatDuration renders milliseconds as "<m>m <s>s".
func formatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%dm %ds", ms/60000, (ms%60000)/1000)
}
