// Package execution defines durable workflow execution state — the
// execution record, per-step states, the versioned store contract, and
// the state manager that performs optimistic-concurrency mutations.
package execution

import (
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// Status is the lifecycle state of a workflow execution.
type Status string

const (
	// StatusPending means the execution record exists but dispatch has
	// not begun.
	StatusPending Status = "pending"
	// StatusRunning means the engine is dispatching steps.
	StatusRunning Status = "running"
	// StatusPaused means the execution is suspended at a human_input
	// step, awaiting Resume. No goroutine is held during this wait.
	StatusPaused Status = "paused"
	// StatusCompleted means every reachable step finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means a step failed without continue_on_error.
	StatusFailed Status = "failed"
	// StatusCancelled means cancellation was observed at a step boundary.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal executions are
// immutable.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus is the lifecycle state of a single step within an execution.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Settled reports whether the step has reached a state that unblocks
// its successors.
func (s StepStatus) Settled() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// StepState records one step's progress within an execution.
type StepState struct {
	ID     string     `json:"id"`
	Status StepStatus `json:"status"`

	// Attempt counts dispatches of this step; retries record a new
	// attempt rather than silently overwriting the previous one.
	Attempt int `json:"attempt"`

	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Execution is a durable record of one workflow run. Its Version
// increases by exactly one on every persisted mutation and is the basis
// for optimistic-concurrency conflict detection across engine instances.
type Execution struct {
	conductor.Entity

	ID         id.ExecutionID `json:"id"`
	WorkflowID id.WorkflowID  `json:"workflow_id"`

	// WorkspaceID routes status events to the right subscribers.
	WorkspaceID string `json:"workspace_id,omitempty"`

	// AgentID groups executions by their owning agent for bulk
	// cancellation and liveness queries.
	AgentID id.AgentID `json:"agent_id,omitempty"`

	Status  Status `json:"status"`
	Version int64  `json:"version"`

	Input   map[string]any        `json:"input,omitempty"`
	Steps   map[string]*StepState `json:"steps"`
	Outputs map[string]any        `json:"outputs"`
	Context map[string]any        `json:"context"`

	// PausedStepID names the human_input step the execution is waiting
	// on while Status is paused.
	PausedStepID string `json:"paused_step_id,omitempty"`

	// ForkedFrom links a forked execution back to its source. The
	// source itself is never mutated by forking.
	ForkedFrom id.ExecutionID `json:"forked_from,omitempty"`

	Error string `json:"error,omitempty"`
}

// InitialVersion is the version assigned to a freshly created execution
// record, including forks.
const InitialVersion int64 = 1

// New creates a pending execution record at the initial version.
func New(workflowID id.WorkflowID, input map[string]any) *Execution {
	return &Execution{
		Entity:     conductor.NewEntity(),
		ID:         id.NewExecutionID(),
		WorkflowID: workflowID,
		Status:     StatusPending,
		Version:    InitialVersion,
		Input:      deepCopyMap(input),
		Steps:      make(map[string]*StepState),
		Outputs:    make(map[string]any),
		Context:    make(map[string]any),
	}
}

// Clone returns a deep, independent copy of the execution. Stores hand
// out clones so callers never alias mutable internal structures.
func (e *Execution) Clone() *Execution {
	cp := *e
	cp.Input = deepCopyMap(e.Input)
	cp.Outputs = deepCopyMap(e.Outputs)
	cp.Context = deepCopyMap(e.Context)
	cp.Steps = make(map[string]*StepState, len(e.Steps))
	for stepID, ss := range e.Steps {
		cp.Steps[stepID] = ss.Clone()
	}
	return &cp
}

// Clone returns a deep copy of the step state.
func (s *StepState) Clone() *StepState {
	cp := *s
	cp.Output = deepCopyMap(s.Output)
	return &cp
}

// deepCopyValue copies nested map/slice JSON-style values; scalars are
// returned as-is.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}
