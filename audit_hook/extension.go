package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/hook"
)

// Compile-time interface checks.
var (
	_ hook.Extension          = (*Extension)(nil)
	_ hook.ExecutionStarted   = (*Extension)(nil)
	_ hook.ExecutionPaused    = (*Extension)(nil)
	_ hook.ExecutionResumed   = (*Extension)(nil)
	_ hook.ExecutionCompleted = (*Extension)(nil)
	_ hook.ExecutionFailed    = (*Extension)(nil)
	_ hook.ExecutionCancelled = (*Extension)(nil)
	_ hook.ExecutionForked    = (*Extension)(nil)
	_ hook.StepStarted        = (*Extension)(nil)
	_ hook.StepCompleted      = (*Extension)(nil)
	_ hook.StepFailed         = (*Extension)(nil)
	_ hook.StepSkipped        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so this package does not depend on any concrete
// audit store — callers inject their backend at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges execution lifecycle events to an audit trail
// backend. Each lifecycle hook emits a structured audit event through
// the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Execution lifecycle hooks ───────────────────────

// OnExecutionStarted implements hook.ExecutionStarted.
func (e *Extension) OnExecutionStarted(ctx context.Context, ex *execution.Execution) error {
	return e.record(ctx, ActionExecutionStarted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, ex.ID.String(), CategoryExecution, nil,
		"workflow_id", ex.WorkflowID.String(),
		"workspace_id", ex.WorkspaceID,
	)
}

// OnExecutionPaused implements hook.ExecutionPaused.
func (e *Extension) OnExecutionPaused(ctx context.Context, ex *execution.Execution, stepID string) error {
	return e.record(ctx, ActionExecutionPaused, SeverityInfo, OutcomeSuccess,
		ResourceExecution, ex.ID.String(), CategoryExecution, nil,
		"workflow_id", ex.WorkflowID.String(),
		"paused_step_id", stepID,
	)
}

// OnExecutionResumed implements hook.ExecutionResumed.
func (e *Extension) OnExecutionResumed(ctx context.Context, ex *execution.Execution, stepID string) error {
	return e.record(ctx, ActionExecutionResumed, SeverityInfo, OutcomeSuccess,
		ResourceExecution, ex.ID.String(), CategoryExecution, nil,
		"workflow_id", ex.WorkflowID.String(),
		"resumed_step_id", stepID,
	)
}

// OnExecutionCompleted implements hook.ExecutionCompleted.
func (e *Extension) OnExecutionCompleted(ctx context.Context, ex *execution.Execution, elapsed time.Duration) error {
	return e.record(ctx, ActionExecutionCompleted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, ex.ID.String(), CategoryExecution, nil,
		"workflow_id", ex.WorkflowID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnExecutionFailed implements hook.ExecutionFailed.
func (e *Extension) OnExecutionFailed(ctx context.Context, ex *execution.Execution, execErr error) error {
	return e.record(ctx, ActionExecutionFailed, SeverityCritical, OutcomeFailure,
		ResourceExecution, ex.ID.String(), CategoryExecution, execErr,
		"workflow_id", ex.WorkflowID.String(),
	)
}

// OnExecutionCancelled implements hook.ExecutionCancelled.
func (e *Extension) OnExecutionCancelled(ctx context.Context, ex *execution.Execution) error {
	return e.record(ctx, ActionExecutionCancelled, SeverityWarning, OutcomeSuccess,
		ResourceExecution, ex.ID.String(), CategoryExecution, nil,
		"workflow_id", ex.WorkflowID.String(),
	)
}

// OnExecutionForked implements hook.ExecutionForked.
func (e *Extension) OnExecutionForked(ctx context.Context, source, fork *execution.Execution, fromStepID string) error {
	return e.record(ctx, ActionExecutionForked, SeverityInfo, OutcomeSuccess,
		ResourceExecution, fork.ID.String(), CategoryExecution, nil,
		"workflow_id", fork.WorkflowID.String(),
		"forked_from", source.ID.String(),
		"from_step_id", fromStepID,
	)
}

// ── Step lifecycle hooks ────────────────────────────

// OnStepStarted implements hook.StepStarted.
func (e *Extension) OnStepStarted(ctx context.Context, ex *execution.Execution, stepID string) error {
	return e.record(ctx, ActionStepStarted, SeverityInfo, OutcomeSuccess,
		ResourceStep, stepID, CategoryStep, nil,
		"execution_id", ex.ID.String(),
		"attempt", stepAttempt(ex, stepID),
	)
}

// OnStepCompleted implements hook.StepCompleted.
func (e *Extension) OnStepCompleted(ctx context.Context, ex *execution.Execution, stepID string, elapsed time.Duration) error {
	return e.record(ctx, ActionStepCompleted, SeverityInfo, OutcomeSuccess,
		ResourceStep, stepID, CategoryStep, nil,
		"execution_id", ex.ID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnStepFailed implements hook.StepFailed.
func (e *Extension) OnStepFailed(ctx context.Context, ex *execution.Execution, stepID string, stepErr error) error {
	return e.record(ctx, ActionStepFailed, SeverityWarning, OutcomeFailure,
		ResourceStep, stepID, CategoryStep, stepErr,
		"execution_id", ex.ID.String(),
		"attempt", stepAttempt(ex, stepID),
	)
}

// OnStepSkipped implements hook.StepSkipped.
func (e *Extension) OnStepSkipped(ctx context.Context, ex *execution.Execution, stepID string) error {
	return e.record(ctx, ActionStepSkipped, SeverityInfo, OutcomeSuccess,
		ResourceStep, stepID, CategoryStep, nil,
		"execution_id", ex.ID.String(),
	)
}

// ── Internal helpers ────────────────────────────────

func stepAttempt(ex *execution.Execution, stepID string) int {
	if ss, ok := ex.Steps[stepID]; ok {
		return ss.Attempt
	}
	return 0
}

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
