package youtube

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/transcriptflow/transcriptflow/internal/engine"
)

// Export formats supported for finished transcripts.
const (
	FormatTXT  = "txt"
	FormatSRT  = "srt"
	FormatJSON = "json"
)

// ValidFormat reports whether f is a supported export format.
func ValidFormat(f string) bool {
	return f == FormatTXT || f == FormatSRT || f == FormatJSON
}

// PlainText joins segment texts with single spaces, normalizing whitespace.
func PlainText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return engine.NormalizeSpace(strings.Join(parts, " "))
}

// RenderSRT renders segments as sequential numbered SRT cues.
func RenderSRT(segments []Segment) string {
	var sb strings.Builder
	for i, s := range segments {
		start := formatSRTTimestamp(s.Start)
		end := formatSRTTimestamp(s.Start + s.Duration)
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n", i+1, start, end, s.Text)
		if i < len(segments)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// ParseSRT parses an SRT document back into segments. Texts spanning multiple
// lines are joined with spaces. Timing is recovered at millisecond resolution.
func ParseSRT(srt string) ([]Segment, error) {
	var segs []Segment
	blocks := strings.Split(strings.ReplaceAll(srt, "\r\n", "\n"), "\n\n")
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}
		// lines[0] is the cue number, lines[1] the timing, the rest text.
		timing := strings.SplitN(lines[1], " --> ", 2)
		if len(timing) != 2 {
			return nil, fmt.Errorf("malformed cue timing: %q", lines[1])
		}
		start, err := parseSRTTimestamp(timing[0])
		if err != nil {
			return nil, err
		}
		end, err := parseSRTTimestamp(timing[1])
		if err != nil {
			return nil, err
		}
		segs = append(segs, Segment{
			Text:     strings.Join(lines[2:], " "),
			Start:    start,
			Duration: end - start,
		})
	}
	return segs, nil
}

// formatSRTTimestamp renders seconds as HH:MM:SS,mmm.
func formatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// parseSRTTimestamp parses HH:MM:SS,mmm into seconds.
func parseSRTTimestamp(ts string) (float64, error) {
	var h, m, s, ms int64
	if _, err := fmt.Sscanf(strings.TrimSpace(ts), "%02d:%02d:%02d,%03d", &h, &m, &s, &ms); err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	return float64(h*3600000+m*60000+s*1000+ms) / 1000, nil
}

// Export renders a finished transcript in the requested format.
func Export(res *TranscriptResult, format string) ([]byte, string, error) {
	switch format {
	case FormatTXT:
		return []byte(res.PlainText), "text/plain; charset=utf-8", nil
	case FormatSRT:
		return []byte(res.SRT), "application/x-subrip", nil
	case FormatJSON:
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal transcript: %w", err)
		}
		return data, "application/json", nil
	default:
		return nil, "", fmt.Errorf("unsupported format %q", format)
	}
}
