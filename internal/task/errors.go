package task

import (
	"errors"
	"fmt"
)

// ErrCancelled marks cooperative cancellation observed at a suspension
// point. It aborts the current stage but is not a system failure.
var ErrCancelled = errors.New("task cancelled")

// AcquisitionError represents a failed acquisition: network failures,
// non-success HTTP statuses, or swarm engine failures. It aborts the task.
type AcquisitionError struct {
	Kind   SourceKind // which variant was acquiring
	Reason string     // human-readable explanation
	Err    error      // underlying error, if any
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s acquisition failed: %s", e.Kind, e.Reason)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// RelayError represents a per-file upload failure. It never aborts sibling
// uploads; the task's terminal summary reflects it instead.
type RelayError struct {
	File string // display name of the file that failed
	Err  error  // underlying error, if any
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay failed for %s: %v", e.File, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}
