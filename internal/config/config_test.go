package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Engines.YtDlpBinary != "yt-dlp" {
		t.Fatalf("unexpected default ytdlp binary: %q", cfg.Engines.YtDlpBinary)
	}
	if cfg.Pipeline.DefaultOutputFormat != "mp3" {
		t.Fatalf("unexpected default output format: %q", cfg.Pipeline.DefaultOutputFormat)
	}
	if !filepath.IsAbs(cfg.Paths.WorkDir) {
		t.Fatalf("work dir should be absolute after normalize: %q", cfg.Paths.WorkDir)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
work_dir = "` + filepath.Join(dir, "work") + `"

[engines]
demucs_model = "htdemucs_ft"

[pipeline]
default_output_format = "FLAC"

[logging]
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.Engines.DemucsModel != "htdemucs_ft" {
		t.Fatalf("override not applied: %q", cfg.Engines.DemucsModel)
	}
	if cfg.Pipeline.DefaultOutputFormat != "flac" {
		t.Fatalf("format should be lowercased: %q", cfg.Pipeline.DefaultOutputFormat)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level should be lowercased: %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadFormat(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.DefaultOutputFormat = "aiff"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "default_output_format") {
		t.Fatalf("expected format validation error, got %v", err)
	}
}

func TestValidateRejectsZeroRetryBudget(t *testing.T) {
	cfg := Default()
	cfg.Storage.ConnectAttempts = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "connect_attempts") {
		t.Fatalf("expected retry budget validation error, got %v", err)
	}
}

func TestEnsureDirectoriesCreatesTree(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "stems")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Storage.JobDBPath = filepath.Join(base, "db", "jobs.db")
	cfg.Storage.CacheDBPath = filepath.Join(base, "db", "cache.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.OutputDir, cfg.Paths.LogDir, filepath.Join(base, "db")} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("sample config should exist")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}
