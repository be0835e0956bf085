package testsupport

import (
	"path/filepath"
	"testing"

	"jamsplitter/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "stems")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Storage.JobDBPath = filepath.Join(base, "jobs.db")
	cfg.Storage.CacheDBPath = filepath.Join(base, "cache.db")
	cfg.Storage.ConnectDelayMilli = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return &cfg
}

// WithCaptions enables the transcription side feature on the test config.
func WithCaptions() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.Captions = true
	}
}

// WithNativeFormat overrides the separator's native output format.
func WithNativeFormat(format string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.NativeFormat = format
	}
}
