package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/schema"
	"github.com/xraph/conductor/workflow"
)

// dispatchStep runs an action step: parameters are interpolated against
// the execution context, validated, and handed to the executor through
// the middleware chain. Failed calls are retried up to the step's
// max_retries with backoff; schema violations are never retried.
func (eng *Engine) dispatchStep(ctx context.Context, exec *execution.Execution, step *workflow.Step) (map[string]any, error) {
	params := interpolateParams(step.Parameters, exec.Context)

	if err := schema.Validate(step.ID, "input", step.InputSchema, params); err != nil {
		return nil, err
	}

	var output map[string]any
	invoke := func(hctx context.Context) error {
		out, err := eng.executor.Invoke(hctx, step.Service, step.Action, params, exec.Context)
		if err != nil {
			return err
		}
		output = out
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= step.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := eng.bo.Delay(attempt)
			eng.logger.Info("retrying step",
				slog.String("execution_id", exec.ID.String()),
				slog.String("step_id", step.ID),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			// Re-dispatch as a fresh attempt on the record.
			if _, err := eng.manager.UpdateStepStatus(ctx, exec.ID, step.ID, execution.StepRunning, execution.StepUpdate{Retry: true}); err != nil {
				return nil, err
			}
		}

		lastErr = eng.chain(ctx, exec, step, invoke)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if !retryable(lastErr) {
			return nil, lastErr
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	if err := schema.Validate(step.ID, "output", step.OutputSchema, output); err != nil {
		return nil, err
	}
	return output, nil
}

// retryable reports whether a step error is worth re-dispatching.
// Validation and timeout outcomes are deterministic for a given input,
// so only plain executor failures retry.
func retryable(err error) bool {
	var sve *conductor.SchemaValidationError
	if errors.As(err, &sve) {
		return false
	}
	var ste *conductor.StepTimeoutError
	if errors.As(err, &ste) {
		return false
	}
	return !errors.Is(err, conductor.ErrHandlerNotFound)
}

// runSubWorkflow executes a nested workflow and joins on it. The join
// holds no semaphore slot; the child's steps take slots of their own.
// The child's interpolated parameters become its input; its outputs
// become the step's output. The child failing, or being cancelled
// alongside the parent, fails the step.
func (eng *Engine) runSubWorkflow(ctx context.Context, exec *execution.Execution, step *workflow.Step) (map[string]any, error) {
	input := interpolateParams(step.Parameters, exec.Context)

	child, err := eng.Execute(ctx, step.SubWorkflowID, input, ExecuteOpts{
		WorkspaceID: exec.WorkspaceID,
		AgentID:     exec.AgentID,
	})
	if err != nil {
		return nil, fmt.Errorf("sub-workflow %s: %w", step.SubWorkflowID, err)
	}

	done, err := eng.Wait(ctx, child.ID)
	if err != nil {
		// Parent cancelled while the child runs: take the child down too.
		//nolint:errcheck
		eng.Cancel(context.WithoutCancel(ctx), child.ID)
		return nil, err
	}

	switch done.Status {
	case execution.StatusCompleted:
		return done.Outputs, nil
	case execution.StatusPaused:
		return nil, fmt.Errorf("sub-workflow execution %s paused; human_input steps are not supported inside sub-workflows", done.ID)
	default:
		if done.Error != "" {
			return nil, fmt.Errorf("sub-workflow execution %s %s: %s", done.ID, done.Status, done.Error)
		}
		return nil, fmt.Errorf("sub-workflow execution %s %s", done.ID, done.Status)
	}
}
