// Package demucs wraps the demucs binary for stem separation.
package demucs

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

const (
	// DefaultBinary is used when no binary is configured.
	DefaultBinary = "demucs"
	// DefaultModel is the separation model used when none is configured.
	DefaultModel = "htdemucs"
)

// Service separates source audio into stems via demucs.
type Service struct {
	binary        string
	model         string
	workDir       string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService builds a separator from configuration.
func NewService(cfg *config.Config) *Service {
	binary := DefaultBinary
	model := DefaultModel
	workDir := ""
	if cfg != nil {
		if b := strings.TrimSpace(cfg.Engines.DemucsBinary); b != "" {
			binary = b
		}
		if m := strings.TrimSpace(cfg.Engines.DemucsModel); m != "" {
			model = m
		}
		workDir = cfg.Paths.WorkDir
	}
	return &Service{binary: binary, model: model, workDir: workDir}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured separation model for logging.
func (s *Service) Model() string {
	return s.model
}

// Separate runs stem separation on sourcePath and returns the produced stems
// keyed by name. An engine run that produces no stems reports a stage failure.
func (s *Service) Separate(ctx context.Context, jobID, sourcePath string) (map[string]string, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return nil, services.Wrap(services.ErrInvalidInput, "separate", "run", "source path is required", nil)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, services.Wrap(services.ErrStageFailure, "separate", "run", "source file missing", err)
	}

	outRoot := filepath.Join(s.workDir, jobID, "stems")
	if err := os.MkdirAll(outRoot, 0o755); err != nil {
		return nil, fmt.Errorf("demucs: ensure output dir: %w", err)
	}

	args := []string{
		"--name", s.model,
		"--out", outRoot,
		sourcePath,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return nil, services.Wrap(services.ErrStageFailure, "separate", "run", sourcePath, err)
	}

	stems, err := collectStems(outRoot)
	if err != nil {
		return nil, fmt.Errorf("demucs: collect stems: %w", err)
	}
	if len(stems) == 0 {
		return nil, services.Wrap(services.ErrStageFailure, "separate", "run", "engine produced no stems", nil)
	}
	return stems, nil
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

// collectStems walks the demucs output tree and maps stem names to file paths.
// Demucs nests output as <out>/<model>/<track>/<stem>.wav.
func collectStems(outRoot string) (map[string]string, error) {
	stems := make(map[string]string)
	err := filepath.WalkDir(outRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".wav" && ext != ".flac" && ext != ".mp3" {
			return nil
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		stems[name] = path
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stems, nil
}
