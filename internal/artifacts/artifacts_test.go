package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"log/slog"

	"jamsplitter/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Pipeline.ArtifactCacheMaxGiB = 1
	cfg.Pipeline.ArtifactCachePruning = true
	return &cfg
}

func writeStem(t *testing.T, dir, name string, size int) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mk stem dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write stem: %v", err)
	}
	return path
}

func TestPlaceCopiesStems(t *testing.T) {
	cfg := testConfig(t)
	manager := NewManager(cfg, slog.Default())
	if manager == nil {
		t.Fatalf("expected manager")
	}

	work := t.TempDir()
	stems := map[string]string{
		"vocals": writeStem(t, work, "vocals.wav", 64),
		"drums":  writeStem(t, work, "drums.wav", 32),
	}

	placed, err := manager.Place(context.Background(), "job-1", stems)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(placed) != 2 {
		t.Fatalf("expected 2 placed stems, got %d", len(placed))
	}
	for name, path := range placed {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat placed %q: %v", name, err)
		}
		if info.Size() == 0 {
			t.Fatalf("placed stem %q is empty", name)
		}
		if filepath.Dir(path) != manager.JobDir("job-1") {
			t.Fatalf("stem %q placed outside job dir: %s", name, path)
		}
	}
}

func TestPlaceReplacesExistingEntry(t *testing.T) {
	cfg := testConfig(t)
	manager := NewManager(cfg, slog.Default())

	work := t.TempDir()
	first := map[string]string{
		"vocals": writeStem(t, work, "vocals.wav", 64),
		"drums":  writeStem(t, work, "drums.wav", 64),
	}
	if _, err := manager.Place(context.Background(), "job-1", first); err != nil {
		t.Fatalf("place first: %v", err)
	}

	second := map[string]string{"vocals": writeStem(t, work, "vocals2.wav", 32)}
	placed, err := manager.Place(context.Background(), "job-1", second)
	if err != nil {
		t.Fatalf("place second: %v", err)
	}
	if len(placed) != 1 {
		t.Fatalf("expected replacement, got %d stems", len(placed))
	}

	entries, err := os.ReadDir(manager.JobDir("job-1"))
	if err != nil {
		t.Fatalf("read job dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("stale files survived replacement: %d entries", len(entries))
	}
}

func TestPruneBySize(t *testing.T) {
	cfg := testConfig(t)
	manager := NewManager(cfg, slog.Default())

	// Override statfs to ignore free-space logic in this test.
	manager.statfs = func(string) (uint64, uint64, error) {
		return 100, 50, nil
	}

	work := t.TempDir()
	oldStems := map[string]string{"vocals": writeStem(t, work, "old.wav", 800*1024*1024)}
	if _, err := manager.Place(context.Background(), "job-old", oldStems); err != nil {
		t.Fatalf("place old: %v", err)
	}
	oldDir := manager.JobDir("job-old")
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldDir, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	newStems := map[string]string{"vocals": writeStem(t, work, "new.wav", 400*1024*1024)}
	if _, err := manager.Place(context.Background(), "job-new", newStems); err != nil {
		t.Fatalf("place new: %v", err)
	}

	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatalf("expected oldest entry to be pruned")
	}
	if _, err := os.Stat(manager.JobDir("job-new")); err != nil {
		t.Fatalf("expected newest entry to remain: %v", err)
	}
}

func TestPruneKeepsActiveEntry(t *testing.T) {
	cfg := testConfig(t)
	manager := NewManager(cfg, slog.Default())
	manager.statfs = func(string) (uint64, uint64, error) {
		return 100, 50, nil
	}

	work := t.TempDir()
	stems := map[string]string{"vocals": writeStem(t, work, "big.wav", 1200*1024*1024)}
	if _, err := manager.Place(context.Background(), "job-only", stems); err == nil {
		t.Fatalf("expected error when sole entry exceeds budget")
	}
}

func TestStatsIncludesEntrySummaries(t *testing.T) {
	cfg := testConfig(t)
	manager := NewManager(cfg, slog.Default())
	manager.statfs = func(string) (uint64, uint64, error) {
		return 1 << 40, 1 << 39, nil
	}

	writeEntry := func(jobID string, when time.Time, files map[string]int) {
		dir := manager.JobDir(jobID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mk entry dir: %v", err)
		}
		for name, size := range files {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
				t.Fatalf("write file: %v", err)
			}
			if err := os.Chtimes(path, when, when); err != nil {
				t.Fatalf("chtimes file: %v", err)
			}
		}
		if err := os.Chtimes(dir, when, when); err != nil {
			t.Fatalf("chtimes dir: %v", err)
		}
	}

	oldTime := time.Now().Add(-2 * time.Hour)
	newTime := time.Now().Add(-time.Minute)
	writeEntry("job-old", oldTime, map[string]int{"job-old_vocals.wav": 128})
	writeEntry("job-new", newTime, map[string]int{
		"job-new_vocals.wav": 256,
		"job-new_drums.wav":  64,
	})

	stats, err := manager.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got, want := len(stats.EntrySummaries), 2; got != want {
		t.Fatalf("entry summaries len: got %d want %d", got, want)
	}
	first := stats.EntrySummaries[0]
	if first.Directory != manager.JobDir("job-new") {
		t.Fatalf("unexpected directory ordering: %s", first.Directory)
	}
	if first.PrimaryStem != "job-new_vocals.wav" {
		t.Fatalf("primary stem mismatch: %q", first.PrimaryStem)
	}
	if first.StemCount != 2 {
		t.Fatalf("stem count mismatch: %d", first.StemCount)
	}
	second := stats.EntrySummaries[1]
	if second.PrimaryStem != "job-old_vocals.wav" {
		t.Fatalf("second primary mismatch: %q", second.PrimaryStem)
	}
	if second.StemCount != 1 {
		t.Fatalf("second stem count mismatch: %d", second.StemCount)
	}
}
