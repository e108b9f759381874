package execution

import (
	"context"

	"github.com/xraph/conductor/id"
)

// ListOpts controls filtering and pagination for execution list queries.
type ListOpts struct {
	// Status filters by execution status. Empty means all statuses.
	Status Status
	// WorkflowID filters by owning workflow definition. Nil means all.
	WorkflowID id.WorkflowID
	// Limit is the maximum number of executions to return. Zero means
	// no limit.
	Limit int
	// Offset is the number of executions to skip.
	Offset int
}

// Store defines the versioned persistence contract for executions.
//
// Implementations must treat every record as versioned: reads return
// deep copies together with the record's current version (carried on
// the Execution itself), and conditional writes succeed only when the
// stored version still matches the caller's expectation. This lets
// multiple engine instances share one store with no locks.
type Store interface {
	// CreateExecution persists a new execution record at its initial
	// version. Returns conductor.ErrExecutionExists on an ID collision.
	CreateExecution(ctx context.Context, exec *Execution) error

	// GetExecution retrieves an execution by ID. The returned record is
	// a deep, independent copy. Returns conductor.ErrExecutionNotFound
	// for unknown IDs.
	GetExecution(ctx context.Context, execID id.ExecutionID) (*Execution, error)

	// UpdateExecutionIfVersion persists the record only if the stored
	// version equals expected; on success the persisted (and passed-in)
	// record carries version expected+1. Returns
	// conductor.ErrVersionConflict when another writer got there first.
	UpdateExecutionIfVersion(ctx context.Context, exec *Execution, expected int64) error

	// ListExecutions returns executions matching the given options,
	// ordered by creation time.
	ListExecutions(ctx context.Context, opts ListOpts) ([]*Execution, error)
}
