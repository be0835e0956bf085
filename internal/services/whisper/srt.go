package whisper

import (
	"fmt"
	"os"
	"strings"
)

// WriteSRT renders segments as an SRT file at path. Cues are numbered from 1
// in the order given.
func WriteSRT(path string, segments []Segment) error {
	if len(segments) == 0 {
		return fmt.Errorf("srt: no segments to write")
	}
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatSRTTimestamp(seg.Start), formatSRTTimestamp(seg.End))
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("srt: write %q: %w", path, err)
	}
	return nil
}

// formatSRTTimestamp renders seconds as HH:MM:SS,mmm (SRT uses a comma for
// the millisecond separator).
func formatSRTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	hours := millis / 3_600_000
	millis -= hours * 3_600_000
	minutes := millis / 60_000
	millis -= minutes * 60_000
	secs := millis / 1000
	millis -= secs * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
