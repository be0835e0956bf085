// Package whisper wraps the whisper binary for caption transcription.
package whisper

import (
	"context"
	"encoding/json"
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
	DefaultBinary = "whisper"
	// DefaultModel is the transcription model used when none is configured.
	DefaultModel = "base"
)

// Segment is one transcribed caption with timing in seconds.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// whisperPayload is the JSON structure from whisper output.
type whisperPayload struct {
	Segments []Segment `json:"segments"`
}

// Service transcribes audio into timed caption segments.
type Service struct {
	binary        string
	model         string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService builds a transcriber from configuration.
func NewService(cfg *config.Config) *Service {
	binary := DefaultBinary
	model := DefaultModel
	if cfg != nil {
		if b := strings.TrimSpace(cfg.Engines.WhisperBinary); b != "" {
			binary = b
		}
		if m := strings.TrimSpace(cfg.Engines.WhisperModel); m != "" {
			model = m
		}
	}
	return &Service{binary: binary, model: model}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured transcription model for logging.
func (s *Service) Model() string {
	return s.model
}

// Transcribe runs whisper on audioPath and returns the timed segments the
// engine produced. Segments with non-positive duration or negative start
// times are discarded.
func (s *Service) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, services.Wrap(services.ErrStageFailure, "captions", "transcribe", "audio file missing", err)
	}

	outputDir := filepath.Dir(audioPath)
	args := []string{
		audioPath,
		"--model", s.model,
		"--output_format", "json",
		"--output_dir", outputDir,
	}
	if err := s.run(ctx, s.binary, args...); err != nil {
		return nil, services.Wrap(services.ErrStageFailure, "captions", "transcribe", audioPath, err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	segments, err := LoadSegments(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrStageFailure, "captions", "transcribe", "engine produced no readable output", err)
	}
	return FilterSegments(segments), nil
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

// LoadSegments loads segments from a whisper JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}
	return payload.Segments, nil
}

// FilterSegments drops segments whose timing is unusable for captions.
func FilterSegments(segments []Segment) []Segment {
	kept := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.Start < 0 || seg.End <= seg.Start {
			continue
		}
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		kept = append(kept, seg)
	}
	return kept
}
