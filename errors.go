package distill

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrRunNotFound is returned when a run does not exist. The step
	// fails immediately with no mutation.
	ErrRunNotFound = errors.New("run not found")

	// ErrObjectiveRequired is returned when creating a run without an
	// objective.
	ErrObjectiveRequired = errors.New("objective is required")

	// ErrProviderUnavailable is returned when a run has reasoning enabled
	// but the orchestrator was built without a provider.
	ErrProviderUnavailable = errors.New("reasoning provider unavailable")

	// ErrSilentDeletion is returned when a compression output removes
	// memory items without a supersession edge or a dropped entry.
	ErrSilentDeletion = errors.New("compression dropped memory without accounting")
)

// StepError carries the failing pipeline stage and run.
type StepError struct {
	Op    string // pipeline stage that failed
	RunID string
	Err   error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s (run=%s): %v", e.Op, e.RunID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(op, runID string, err error) *StepError {
	return &StepError{Op: op, RunID: runID, Err: err}
}
