// Package deps reports the availability of external binaries the pipeline
// shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"jamsplitter/internal/config"
)

// Requirement defines an external dependency the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Requirements lists the external tools for the given config. Whisper is
// optional because caption generation can be disabled.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	reqs := []Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Engines.YtDlpBinary,
			Description: "Required for downloading source audio",
		},
		{
			Name:        "Demucs",
			Command:     cfg.Engines.DemucsBinary,
			Description: "Required for stem separation",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Engines.FFmpegBinary,
			Description: "Required for format conversion",
		},
	}
	if cfg.Pipeline.Captions {
		reqs = append(reqs, Requirement{
			Name:        "Whisper",
			Command:     cfg.Engines.WhisperBinary,
			Description: "Required for caption generation",
			Optional:    true,
		})
	}
	return reqs
}
