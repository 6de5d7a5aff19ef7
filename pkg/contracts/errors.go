package contracts

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline. Callers classify failures
// with errors.Is rather than string matching.
var (
	// ErrValidation marks malformed or missing caller input.
	ErrValidation = errors.New("validation failed")

	// ErrCollaboratorUnavailable marks an external reasoning or document
	// service that could not be reached or timed out. The pipeline treats
	// this as degraded, not fatal.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrPersistenceDegraded marks a durable store write that failed and
	// was served from cache instead.
	ErrPersistenceDegraded = errors.New("persistence degraded")

	// ErrNotFound marks a lookup for an application that does not exist.
	ErrNotFound = errors.New("application not found")
)

// PipelineError wraps a stage failure with enough context to record the
// ERROR transition and surface a useful message to the caller.
type PipelineError struct {
	ApplicationID string
	Stage         string
	Err           error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed for application %s: %v", e.Stage, e.ApplicationID, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewValidationError wraps ErrValidation with a field-level message.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
