// Package ytdlp wraps the yt-dlp binary for fetching source audio.
package ytdlp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"jamsplitter/internal/config"
	"jamsplitter/internal/services"
)

// DefaultBinary is used when no binary is configured.
const DefaultBinary = "yt-dlp"

// Service downloads source media via yt-dlp.
type Service struct {
	binary        string
	workDir       string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService builds a downloader from configuration.
func NewService(cfg *config.Config) *Service {
	binary := DefaultBinary
	workDir := ""
	if cfg != nil {
		if b := strings.TrimSpace(cfg.Engines.YtDlpBinary); b != "" {
			binary = b
		}
		workDir = cfg.Paths.WorkDir
	}
	return &Service{binary: binary, workDir: workDir}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Fetch downloads best-quality audio for the URL into the job's working
// directory and returns the path to the downloaded file. A download that
// produces no file reports a stage failure.
func (s *Service) Fetch(ctx context.Context, jobID, sourceURL string) (string, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return "", services.Wrap(services.ErrInvalidInput, "download", "fetch", "source url is required", nil)
	}

	destDir := filepath.Join(s.workDir, jobID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ytdlp: ensure work dir: %w", err)
	}

	template := filepath.Join(destDir, "source.%(ext)s")
	args := []string{
		"--no-playlist",
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "wav",
		"--output", template,
		sourceURL,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return "", services.Wrap(services.ErrStageFailure, "download", "fetch", sourceURL, err)
	}

	path, err := findDownloaded(destDir)
	if err != nil {
		return "", services.Wrap(services.ErrStageFailure, "download", "fetch", "no suitable stream produced output", err)
	}
	return path, nil
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// findDownloaded returns the downloaded source file inside destDir.
func findDownloaded(destDir string) (string, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), "source.") {
			return filepath.Join(destDir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no download in %q", destDir)
}
