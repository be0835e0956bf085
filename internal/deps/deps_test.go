package deps

import (
	"testing"

	"jamsplitter/internal/config"
)

func TestCheckBinariesReportsMissing(t *testing.T) {
	results := CheckBinaries([]Requirement{
		{Name: "Shell", Command: "sh", Description: "always present"},
		{Name: "Ghost", Command: "definitely-not-a-real-binary-xyz", Description: "never present"},
		{Name: "Unset", Command: "", Description: "not configured"},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected sh to be available: %+v", results[0])
	}
	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable: %+v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("expected unconfigured detail: %+v", results[2])
	}
}

func TestRequirementsFollowCaptionsFlag(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Captions = false
	reqs := Requirements(&cfg)
	for _, req := range reqs {
		if req.Name == "Whisper" {
			t.Fatal("whisper should not be required when captions are disabled")
		}
	}

	cfg.Pipeline.Captions = true
	reqs = Requirements(&cfg)
	found := false
	for _, req := range reqs {
		if req.Name == "Whisper" {
			found = true
			if !req.Optional {
				t.Fatal("whisper requirement should be optional")
			}
		}
	}
	if !found {
		t.Fatal("whisper requirement missing when captions are enabled")
	}
}
