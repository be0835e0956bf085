package main

import (
	"strings"
	"testing"
	"time"

	"jamsplitter/internal/status"
)

func TestStatusCellColors(t *testing.T) {
	if got := statusCell("completed", false); got != "completed" {
		t.Fatalf("expected plain value without color, got %q", got)
	}
	got := statusCell("failed", true)
	if !strings.HasPrefix(got, ansiRed) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected red wrapping for failed, got %q", got)
	}
	if got := statusCell("queued", true); got != "queued" {
		t.Fatalf("expected queued to stay uncolored, got %q", got)
	}
}

func TestProgressCell(t *testing.T) {
	if got := progressCell(0.3); got != "30%" {
		t.Fatalf("expected 30%%, got %q", got)
	}
	if got := progressCell(1); got != "100%" {
		t.Fatalf("expected 100%%, got %q", got)
	}
}

func TestTimeCellZeroValue(t *testing.T) {
	if got := timeCell(time.Time{}); got != "-" {
		t.Fatalf("expected dash for zero time, got %q", got)
	}
}

func TestStemDisplayName(t *testing.T) {
	cases := map[string]string{
		"vocals":      "Vocals",
		"lead_vocals": "Lead Vocals",
		"  drums  ":   "Drums",
		"":            "",
	}
	for input, want := range cases {
		if got := stemDisplayName(input); got != want {
			t.Fatalf("stemDisplayName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRenderJobTable(t *testing.T) {
	views := []status.JobView{
		{
			ID:           "job-1",
			SourceURL:    "https://example.com/track",
			Status:       "processing",
			Progress:     0.7,
			OutputFormat: "mp3",
			UpdatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	rendered := renderJobTable(views, false)
	for _, want := range []string{"Source URL", "job-1", "processing", "70%", "mp3"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("rendered table missing %q:\n%s", want, rendered)
		}
	}
	if strings.Contains(rendered, ansiYellow) {
		t.Fatal("uncolored render must not contain ANSI codes")
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for input, want := range cases {
		if got := humanBytes(input); got != want {
			t.Fatalf("humanBytes(%d) = %q, want %q", input, got, want)
		}
	}
}
