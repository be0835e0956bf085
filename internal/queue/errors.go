package queue

import "errors"

var (
	// ErrNotFound reports that no job row exists for the requested identifier.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal reports an attempted transition on a completed or failed job.
	ErrTerminal = errors.New("job already terminal")
	// ErrProgressRegression reports a progress write below the persisted value.
	ErrProgressRegression = errors.New("progress would regress")
)
