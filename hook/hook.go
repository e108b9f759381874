// Package hook defines the extension system for Conductor.
// Hooks are notified of lifecycle events (execution started, step
// completed, execution paused, etc.) and can react to them — logging,
// metrics, audit trails, external triggers.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/xraph/conductor/execution"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Execution lifecycle hooks
// ──────────────────────────────────────────────────

// ExecutionStarted is called after an execution record is created and
// scheduling begins.
type ExecutionStarted interface {
	OnExecutionStarted(ctx context.Context, ex *execution.Execution) error
}

// ExecutionPaused is called when an execution stops at a human_input
// step and waits for external input.
type ExecutionPaused interface {
	OnExecutionPaused(ctx context.Context, ex *execution.Execution, stepID string) error
}

// ExecutionResumed is called after a paused execution accepts resume
// inputs and scheduling restarts.
type ExecutionResumed interface {
	OnExecutionResumed(ctx context.Context, ex *execution.Execution, stepID string) error
}

// ExecutionCompleted is called after an execution finishes successfully.
type ExecutionCompleted interface {
	OnExecutionCompleted(ctx context.Context, ex *execution.Execution, elapsed time.Duration) error
}

// ExecutionFailed is called when an execution fails terminally.
type ExecutionFailed interface {
	OnExecutionFailed(ctx context.Context, ex *execution.Execution, err error) error
}

// ExecutionCancelled is called after a cancellation request takes
// effect and the execution reaches its terminal cancelled state.
type ExecutionCancelled interface {
	OnExecutionCancelled(ctx context.Context, ex *execution.Execution) error
}

// ExecutionForked is called after a fork snapshot is created, before
// the forked execution starts running.
type ExecutionForked interface {
	OnExecutionForked(ctx context.Context, source, fork *execution.Execution, fromStepID string) error
}

// ──────────────────────────────────────────────────
// Step lifecycle hooks
// ──────────────────────────────────────────────────

// StepStarted is called when a step begins executing.
type StepStarted interface {
	OnStepStarted(ctx context.Context, ex *execution.Execution, stepID string) error
}

// StepCompleted is called after a step completes successfully.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, ex *execution.Execution, stepID string, elapsed time.Duration) error
}

// StepFailed is called when a step fails after exhausting its retries.
type StepFailed interface {
	OnStepFailed(ctx context.Context, ex *execution.Execution, stepID string, err error) error
}

// StepSkipped is called when a step is skipped by conditional routing.
type StepSkipped interface {
	OnStepSkipped(ctx context.Context, ex *execution.Execution, stepID string) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
