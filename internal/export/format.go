package export

import (
	"errors"
	"fmt"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format is the closed set of export formats. The dispatch over formats is an
// exhaustive switch, not an open registry, so a missing renderer is a compile
// review problem rather than a runtime surprise.
type Format string

const (
	FormatSRT      Format = "srt"
	FormatVTT      Format = "vtt"
	FormatJSON     Format = "json"
	FormatTXT      Format = "txt"
	FormatMarkdown Format = "md"
)

// ParseFormat validates a requested format tag.
func ParseFormat(tag string) (Format, error) {
	switch Format(tag) {
	case FormatSRT, FormatVTT, FormatJSON, FormatTXT, FormatMarkdown:
		return Format(tag), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, tag)
	}
}

// MIME returns the content type served for the format.
func (f Format) MIME() string {
	switch f {
	case FormatSRT:
		return "application/x-subrip"
	case FormatVTT:
		return "text/vtt"
	case FormatJSON:
		return "application/json"
	case FormatTXT:
		return "text/plain"
	case FormatMarkdown:
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
