package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput marks malformed URLs or unsupported formats, rejected
	// before any job record exists.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStageFailure marks an external engine that failed or returned an
	// empty result; recorded on the job, never retried by the orchestrator.
	ErrStageFailure = errors.New("stage failure")
	// ErrStorageUnavailable marks a storage connection that exhausted its
	// retry budget; fatal to the current call.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotFound marks lookups for unknown job identifiers.
	ErrNotFound = errors.New("not found")
	// ErrExternalTool marks unexpected failures from a shelled-out binary.
	ErrExternalTool = errors.New("external tool error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStageFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
