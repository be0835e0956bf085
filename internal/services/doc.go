// Package services defines the shared error taxonomy for external engine
// calls and storage operations, plus context annotations that flow job,
// stage, and correlation identifiers into structured logs.
//
// Subpackages wrap the external engines themselves (ytdlp, demucs, ffmpeg,
// whisper); each exposes a narrow file-in/file-out contract with an
// injectable command runner so tests never execute real binaries.
package services
