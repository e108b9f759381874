package conductor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("conductor: no store configured")
	ErrNoExecutor      = errors.New("conductor: no action executor configured")
	ErrStoreClosed     = errors.New("conductor: store closed")
	ErrMigrationFailed = errors.New("conductor: migration failed")

	// Not found errors.
	ErrWorkflowNotFound  = errors.New("conductor: workflow not found")
	ErrExecutionNotFound = errors.New("conductor: execution not found")
	ErrStepNotFound      = errors.New("conductor: step not found")
	ErrHandlerNotFound   = errors.New("conductor: no handler registered for action")

	// Conflict errors.
	ErrExecutionExists = errors.New("conductor: execution already exists")
	// ErrVersionConflict signals an optimistic-concurrency write conflict:
	// the record's version changed between read and write. Callers retry
	// the read-modify-write; the conflict is never surfaced to callers of
	// the orchestration API.
	ErrVersionConflict = errors.New("conductor: execution version conflict")

	// State errors.
	ErrNotPaused         = errors.New("conductor: execution is not paused")
	ErrTerminalExecution = errors.New("conductor: execution already in a terminal state")
	ErrStepCompleted     = errors.New("conductor: step already completed")
)

// SchemaValidationError reports that a step's parameters or output
// violated its declared JSON schema.
type SchemaValidationError struct {
	StepID    string
	Direction string // "input" or "output"
	Causes    []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("conductor: step %q %s schema validation failed: %s",
		e.StepID, e.Direction, strings.Join(e.Causes, "; "))
}

// StepTimeoutError reports that a step's action call exceeded its
// configured timeout.
type StepTimeoutError struct {
	StepID  string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("conductor: step %q timed out after %s", e.StepID, e.Timeout)
}

// MissingInputError reports that Resume was called without all fields
// the paused step requires. The execution remains paused.
type MissingInputError struct {
	StepID string
	Fields []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("conductor: resume of step %q missing required fields: %s",
		e.StepID, strings.Join(e.Fields, ", "))
}
