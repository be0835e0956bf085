package preflight

import (
	"context"
	"path/filepath"
	"testing"

	"jamsplitter/internal/config"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("Work directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass for writable dir: %+v", result)
	}

	result = CheckDirectoryAccess("Work directory", filepath.Join(dir, "absent"))
	if result.Passed {
		t.Fatalf("expected failure for missing dir: %+v", result)
	}
}

func TestRunAllCoversDirectoriesAndBinaries(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Pipeline.Captions = false

	results := RunAll(context.Background(), &cfg)
	if len(results) < 6 {
		t.Fatalf("expected directory and binary checks, got %d results", len(results))
	}

	byName := make(map[string]Result, len(results))
	for _, result := range results {
		byName[result.Name] = result
	}
	for _, name := range []string{"Work directory", "Output directory", "Log directory"} {
		result, ok := byName[name]
		if !ok {
			t.Fatalf("missing check %q", name)
		}
		if !result.Passed {
			t.Fatalf("expected %q to pass: %+v", name, result)
		}
	}
	for _, name := range []string{"yt-dlp", "Demucs", "FFmpeg"} {
		if _, ok := byName[name]; !ok {
			t.Fatalf("missing binary check %q", name)
		}
	}
}
