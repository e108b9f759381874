package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/conductor/execution"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type executionStartedEntry struct {
	name string
	hook ExecutionStarted
}

type executionPausedEntry struct {
	name string
	hook ExecutionPaused
}

type executionResumedEntry struct {
	name string
	hook ExecutionResumed
}

type executionCompletedEntry struct {
	name string
	hook ExecutionCompleted
}

type executionFailedEntry struct {
	name string
	hook ExecutionFailed
}

type executionCancelledEntry struct {
	name string
	hook ExecutionCancelled
}

type executionForkedEntry struct {
	name string
	hook ExecutionForked
}

type stepStartedEntry struct {
	name string
	hook StepStarted
}

type stepCompletedEntry struct {
	name string
	hook StepCompleted
}

type stepFailedEntry struct {
	name string
	hook StepFailed
}

type stepSkippedEntry struct {
	name string
	hook StepSkipped
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	executionStarted   []executionStartedEntry
	executionPaused    []executionPausedEntry
	executionResumed   []executionResumedEntry
	executionCompleted []executionCompletedEntry
	executionFailed    []executionFailedEntry
	executionCancelled []executionCancelledEntry
	executionForked    []executionForkedEntry
	stepStarted        []stepStartedEntry
	stepCompleted      []stepCompletedEntry
	stepFailed         []stepFailedEntry
	stepSkipped        []stepSkippedEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(ExecutionStarted); ok {
		r.executionStarted = append(r.executionStarted, executionStartedEntry{name, h})
	}
	if h, ok := e.(ExecutionPaused); ok {
		r.executionPaused = append(r.executionPaused, executionPausedEntry{name, h})
	}
	if h, ok := e.(ExecutionResumed); ok {
		r.executionResumed = append(r.executionResumed, executionResumedEntry{name, h})
	}
	if h, ok := e.(ExecutionCompleted); ok {
		r.executionCompleted = append(r.executionCompleted, executionCompletedEntry{name, h})
	}
	if h, ok := e.(ExecutionFailed); ok {
		r.executionFailed = append(r.executionFailed, executionFailedEntry{name, h})
	}
	if h, ok := e.(ExecutionCancelled); ok {
		r.executionCancelled = append(r.executionCancelled, executionCancelledEntry{name, h})
	}
	if h, ok := e.(ExecutionForked); ok {
		r.executionForked = append(r.executionForked, executionForkedEntry{name, h})
	}
	if h, ok := e.(StepStarted); ok {
		r.stepStarted = append(r.stepStarted, stepStartedEntry{name, h})
	}
	if h, ok := e.(StepCompleted); ok {
		r.stepCompleted = append(r.stepCompleted, stepCompletedEntry{name, h})
	}
	if h, ok := e.(StepFailed); ok {
		r.stepFailed = append(r.stepFailed, stepFailedEntry{name, h})
	}
	if h, ok := e.(StepSkipped); ok {
		r.stepSkipped = append(r.stepSkipped, stepSkippedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Execution event emitters
// ──────────────────────────────────────────────────

// EmitExecutionStarted notifies all extensions that implement ExecutionStarted.
func (r *Registry) EmitExecutionStarted(ctx context.Context, ex *execution.Execution) {
	for _, e := range r.executionStarted {
		if err := e.hook.OnExecutionStarted(ctx, ex); err != nil {
			r.logHookError("OnExecutionStarted", e.name, err)
		}
	}
}

// EmitExecutionPaused notifies all extensions that implement ExecutionPaused.
func (r *Registry) EmitExecutionPaused(ctx context.Context, ex *execution.Execution, stepID string) {
	for _, e := range r.executionPaused {
		if err := e.hook.OnExecutionPaused(ctx, ex, stepID); err != nil {
			r.logHookError("OnExecutionPaused", e.name, err)
		}
	}
}

// EmitExecutionResumed notifies all extensions that implement ExecutionResumed.
func (r *Registry) EmitExecutionResumed(ctx context.Context, ex *execution.Execution, stepID string) {
	for _, e := range r.executionResumed {
		if err := e.hook.OnExecutionResumed(ctx, ex, stepID); err != nil {
			r.logHookError("OnExecutionResumed", e.name, err)
		}
	}
}

// EmitExecutionCompleted notifies all extensions that implement ExecutionCompleted.
func (r *Registry) EmitExecutionCompleted(ctx context.Context, ex *execution.Execution, elapsed time.Duration) {
	for _, e := range r.executionCompleted {
		if err := e.hook.OnExecutionCompleted(ctx, ex, elapsed); err != nil {
			r.logHookError("OnExecutionCompleted", e.name, err)
		}
	}
}

// EmitExecutionFailed notifies all extensions that implement ExecutionFailed.
func (r *Registry) EmitExecutionFailed(ctx context.Context, ex *execution.Execution, execErr error) {
	for _, e := range r.executionFailed {
		if err := e.hook.OnExecutionFailed(ctx, ex, execErr); err != nil {
			r.logHookError("OnExecutionFailed", e.name, err)
		}
	}
}

// EmitExecutionCancelled notifies all extensions that implement ExecutionCancelled.
func (r *Registry) EmitExecutionCancelled(ctx context.Context, ex *execution.Execution) {
	for _, e := range r.executionCancelled {
		if err := e.hook.OnExecutionCancelled(ctx, ex); err != nil {
			r.logHookError("OnExecutionCancelled", e.name, err)
		}
	}
}

// EmitExecutionForked notifies all extensions that implement ExecutionForked.
func (r *Registry) EmitExecutionForked(ctx context.Context, source, fork *execution.Execution, fromStepID string) {
	for _, e := range r.executionForked {
		if err := e.hook.OnExecutionForked(ctx, source, fork, fromStepID); err != nil {
			r.logHookError("OnExecutionForked", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Step event emitters
// ──────────────────────────────────────────────────

// EmitStepStarted notifies all extensions that implement StepStarted.
func (r *Registry) EmitStepStarted(ctx context.Context, ex *execution.Execution, stepID string) {
	for _, e := range r.stepStarted {
		if err := e.hook.OnStepStarted(ctx, ex, stepID); err != nil {
			r.logHookError("OnStepStarted", e.name, err)
		}
	}
}

// EmitStepCompleted notifies all extensions that implement StepCompleted.
func (r *Registry) EmitStepCompleted(ctx context.Context, ex *execution.Execution, stepID string, elapsed time.Duration) {
	for _, e := range r.stepCompleted {
		if err := e.hook.OnStepCompleted(ctx, ex, stepID, elapsed); err != nil {
			r.logHookError("OnStepCompleted", e.name, err)
		}
	}
}

// EmitStepFailed notifies all extensions that implement StepFailed.
func (r *Registry) EmitStepFailed(ctx context.Context, ex *execution.Execution, stepID string, stepErr error) {
	for _, e := range r.stepFailed {
		if err := e.hook.OnStepFailed(ctx, ex, stepID, stepErr); err != nil {
			r.logHookError("OnStepFailed", e.name, err)
		}
	}
}

// EmitStepSkipped notifies all extensions that implement StepSkipped.
func (r *Registry) EmitStepSkipped(ctx context.Context, ex *execution.Execution, stepID string) {
	for _, e := range r.stepSkipped {
		if err := e.hook.OnStepSkipped(ctx, ex, stepID); err != nil {
			r.logHookError("OnStepSkipped", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the engine.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
