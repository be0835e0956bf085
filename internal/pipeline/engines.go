package pipeline

import (
	"context"

	"jamsplitter/internal/services/whisper"
)

// Downloader resolves a source URL to a local audio file.
type Downloader interface {
	Fetch(ctx context.Context, jobID, sourceURL string) (string, error)
}

// Separator splits a local audio file into named stem files.
type Separator interface {
	Separate(ctx context.Context, jobID, sourcePath string) (map[string]string, error)
}

// Converter transcodes a batch of stems into the requested format.
type Converter interface {
	ConvertAll(ctx context.Context, stems map[string]string, format string) (map[string]string, error)
}

// Transcriber produces timed caption segments from an audio file. Optional;
// the base pipeline runs without it.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]whisper.Segment, error)
}

// Engines bundles the external collaborators the orchestrator drives.
type Engines struct {
	Downloader  Downloader
	Separator   Separator
	Converter   Converter
	Transcriber Transcriber
}
