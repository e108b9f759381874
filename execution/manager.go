package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/id"
)

// Manager performs all execution-state mutations as atomic
// read-modify-write cycles with optimistic-concurrency retry. Version
// conflicts are retried internally with backoff and never surface to
// orchestration callers.
type Manager struct {
	store   Store
	bo      backoff.Strategy
	retries int
	logger  *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConflictRetries sets how many times a conflicting write is retried.
func WithConflictRetries(n int) ManagerOption {
	return func(m *Manager) { m.retries = n }
}

// WithConflictBackoff sets the delay strategy between conflict retries.
func WithConflictBackoff(b backoff.Strategy) ManagerOption {
	return func(m *Manager) { m.bo = b }
}

// NewManager creates an execution state manager.
func NewManager(store Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		bo:      backoff.NewExponentialWithJitter(5*time.Millisecond, 250*time.Millisecond),
		retries: 5,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying execution store.
func (m *Manager) Store() Store { return m.store }

// Create persists a new pending execution for the given workflow.
func (m *Manager) Create(ctx context.Context, workflowID id.WorkflowID, workspaceID string, input map[string]any) (*Execution, error) {
	exec := New(workflowID, input)
	exec.WorkspaceID = workspaceID

	if err := m.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution for workflow %s: %w", workflowID, err)
	}
	return exec, nil
}

// CreateFrom persists a pre-built execution record (used by forking,
// which seeds the record with a snapshot of a prior execution).
func (m *Manager) CreateFrom(ctx context.Context, exec *Execution) error {
	if err := m.store.CreateExecution(ctx, exec); err != nil {
		return fmt.Errorf("create execution %s: %w", exec.ID, err)
	}
	return nil
}

// Get retrieves the execution state. Unknown IDs return (nil, nil) — the
// "not found" sentinel — letting callers decide the failure mode.
func (m *Manager) Get(ctx context.Context, execID id.ExecutionID) (*Execution, error) {
	exec, err := m.store.GetExecution(ctx, execID)
	if errors.Is(err, conductor.ErrExecutionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", execID, err)
	}
	return exec, nil
}

// StepOutput returns the recorded output for one step, or nil if the
// execution or step output is absent.
func (m *Manager) StepOutput(ctx context.Context, execID id.ExecutionID, stepID string) (map[string]any, error) {
	exec, err := m.Get(ctx, execID)
	if err != nil || exec == nil {
		return nil, err
	}
	out, ok := exec.Outputs[stepID].(map[string]any)
	if !ok {
		return nil, nil
	}
	return out, nil
}

// Apply runs mutate inside a read-modify-write cycle: read the current
// record, apply the mutation, write conditioned on the version read.
// On ErrVersionConflict the whole cycle is retried against fresh state.
// Returns the persisted record (version already bumped).
//
// Mutations against a terminal execution are rejected; terminal records
// are immutable.
func (m *Manager) Apply(ctx context.Context, execID id.ExecutionID, mutate func(*Execution) error) (*Execution, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		exec, err := m.store.GetExecution(ctx, execID)
		if err != nil {
			return nil, fmt.Errorf("read execution %s: %w", execID, err)
		}
		if exec.Status.Terminal() {
			return nil, fmt.Errorf("mutate execution %s: %w", execID, conductor.ErrTerminalExecution)
		}

		readVersion := exec.Version
		if err := mutate(exec); err != nil {
			return nil, err
		}
		exec.Touch()

		err = m.store.UpdateExecutionIfVersion(ctx, exec, readVersion)
		if err == nil {
			return exec, nil
		}
		if !errors.Is(err, conductor.ErrVersionConflict) {
			return nil, fmt.Errorf("write execution %s: %w", execID, err)
		}

		lastErr = err
		if attempt >= m.retries {
			break
		}

		m.logger.Debug("execution write conflict, retrying",
			slog.String("execution_id", execID.String()),
			slog.Int("attempt", attempt+1),
		)

		select {
		case <-time.After(m.bo.Delay(attempt + 1)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("write execution %s after %d retries: %w", execID, m.retries, lastErr)
}

// StepUpdate carries the optional fields of a step-state mutation.
type StepUpdate struct {
	Output map[string]any
	Error  string

	// Retry permits replacing a completed step state, recording the
	// replacement as a new attempt. Without it, completed states are
	// never overwritten.
	Retry bool
}

// UpdateStepStatus transitions one step's state and, on completion,
// merges its output into the execution's outputs and context. A step
// already completed is only replaced when the update is an explicit
// retry.
func (m *Manager) UpdateStepStatus(ctx context.Context, execID id.ExecutionID, stepID string, status StepStatus, upd StepUpdate) (*Execution, error) {
	return m.Apply(ctx, execID, func(exec *Execution) error {
		now := time.Now().UTC()

		ss, ok := exec.Steps[stepID]
		if !ok {
			ss = &StepState{ID: stepID, Status: StepPending, CreatedAt: now}
			exec.Steps[stepID] = ss
		}

		if ss.Status == StepCompleted && !upd.Retry {
			return fmt.Errorf("step %q of execution %s: %w", stepID, execID, conductor.ErrStepCompleted)
		}

		// Each dispatch of the step is a distinct attempt.
		if status == StepRunning {
			ss.Attempt++
		}

		ss.Status = status
		ss.Error = upd.Error
		ss.UpdatedAt = now
		if upd.Output != nil {
			ss.Output = deepCopyMap(upd.Output)
		}

		if status == StepCompleted {
			out := deepCopyMap(upd.Output)
			if out == nil {
				out = map[string]any{}
			}
			exec.Outputs[stepID] = out
			exec.Context[stepID] = deepCopyMap(out)
		}

		return nil
	})
}

// UpdateStatus transitions the execution's own status. errMsg is
// recorded on failure transitions; paused transitions record the
// awaiting step via pausedStep.
func (m *Manager) UpdateStatus(ctx context.Context, execID id.ExecutionID, status Status, errMsg, pausedStep string) (*Execution, error) {
	return m.Apply(ctx, execID, func(exec *Execution) error {
		exec.Status = status
		exec.Error = errMsg
		exec.PausedStepID = pausedStep
		return nil
	})
}

// UpdateInputs replaces the execution's input data and merges the new
// values into its context, making them visible to later steps. Used by
// Resume to deliver externally supplied input.
func (m *Manager) UpdateInputs(ctx context.Context, execID id.ExecutionID, newInputs map[string]any) (*Execution, error) {
	return m.Apply(ctx, execID, func(exec *Execution) error {
		if exec.Input == nil {
			exec.Input = make(map[string]any, len(newInputs))
		}
		for k, v := range newInputs {
			exec.Input[k] = deepCopyValue(v)
			exec.Context[k] = deepCopyValue(v)
		}
		return nil
	})
}
