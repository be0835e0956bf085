// Package ffmpeg wraps the ffmpeg binary for audio format conversion.
package ffmpeg

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
const DefaultBinary = "ffmpeg"

// Service converts audio files between formats via ffmpeg.
type Service struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService builds a converter from configuration.
func NewService(cfg *config.Config) *Service {
	binary := DefaultBinary
	if cfg != nil {
		if b := strings.TrimSpace(cfg.Engines.FFmpegBinary); b != "" {
			binary = b
		}
	}
	return &Service{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Convert transcodes sourcePath into the requested format next to the source
// and returns the converted path. A run that leaves no output file reports a
// stage failure.
func (s *Service) Convert(ctx context.Context, sourcePath, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return "", services.Wrap(services.ErrInvalidInput, "convert", "run", "target format is required", nil)
	}
	if !config.ValidOutputFormat(format) {
		return "", services.Wrap(services.ErrInvalidInput, "convert", "run", fmt.Sprintf("unsupported format %q", format), nil)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return "", services.Wrap(services.ErrStageFailure, "convert", "run", "source file missing", err)
	}

	target := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + "." + format
	if target == sourcePath {
		return sourcePath, nil
	}

	args := []string{
		"-y",
		"-i", sourcePath,
		"-vn",
		target,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return "", services.Wrap(services.ErrStageFailure, "convert", "run", sourcePath, err)
	}
	if _, err := os.Stat(target); err != nil {
		return "", services.Wrap(services.ErrStageFailure, "convert", "run", "engine produced no output", err)
	}
	return target, nil
}

// ConvertAll converts every stem to the requested format, returning a new map
// keyed by the same stem names.
func (s *Service) ConvertAll(ctx context.Context, stems map[string]string, format string) (map[string]string, error) {
	converted := make(map[string]string, len(stems))
	for name, path := range stems {
		out, err := s.Convert(ctx, path, format)
		if err != nil {
			return nil, fmt.Errorf("stem %q: %w", name, err)
		}
		converted[name] = out
	}
	return converted, nil
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
