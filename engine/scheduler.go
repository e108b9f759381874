package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/task"
	"github.com/xraph/conductor/workflow"
)

// run is the scheduling loop for one execution. It repeatedly reads the
// current record, settles skip cascades, and dispatches every ready
// step as one concurrent wave, until the execution reaches a terminal
// or paused state. Exactly one run loop exists per live execution.
func (eng *Engine) run(ctx context.Context, h *task.Handle, def *workflow.Definition, graph *workflow.Graph, execID id.ExecutionID, started time.Time) {
	defer eng.tasks.Finish(h)

	for {
		// Cancellation is observed at step boundaries only; a wave in
		// flight finishes or is interrupted through its own context.
		if ctx.Err() != nil {
			eng.finalizeCancelled(execID)
			return
		}

		exec, err := eng.manager.Get(ctx, execID)
		if err != nil && ctx.Err() != nil {
			eng.finalizeCancelled(execID)
			return
		}
		if err != nil || exec == nil {
			eng.logger.Error("run loop lost execution record",
				slog.String("execution_id", execID.String()),
			)
			return
		}
		if exec.Status.Terminal() || exec.Status == execution.StatusPaused {
			return
		}

		ready, humans, skipped, err := eng.collectReady(ctx, def, graph, exec)
		if err != nil {
			eng.finalizeFailed(execID, started, err)
			return
		}
		if skipped > 0 {
			// Skip cascades settle more steps; re-read before deciding
			// anything else.
			continue
		}

		if len(ready) == 0 {
			if len(humans) > 0 {
				eng.pauseAt(ctx, execID, humans[0].ID)
				return
			}
			if allSettled(def, exec) {
				eng.finalizeCompleted(execID, started)
				return
			}
			// A valid acyclic graph always offers a ready step until
			// everything settles; reaching here means the record and
			// the definition disagree.
			eng.finalizeFailed(execID, started,
				fmt.Errorf("no runnable steps remain in workflow %s", exec.WorkflowID))
			return
		}

		if err := eng.dispatchWave(ctx, def, graph, execID, ready); err != nil {
			if errors.Is(err, context.Canceled) {
				eng.finalizeCancelled(execID)
				return
			}
			eng.finalizeFailed(execID, started, err)
			return
		}
	}
}

// collectReady partitions the execution's pending steps. A step is
// ready when every predecessor has settled without blocking it; a step
// whose predecessors all settled as skipped is itself marked skipped,
// cascading the non-taken branch of a conditional. Ready human_input
// steps are returned separately: the loop only pauses on one when no
// other work remains. Returns the number of steps skipped this pass.
func (eng *Engine) collectReady(ctx context.Context, def *workflow.Definition, graph *workflow.Graph, exec *execution.Execution) (ready, humans []*workflow.Step, skipped int, err error) {
	for i := range def.Steps {
		step := &def.Steps[i]
		if stepStatus(exec, step.ID) != execution.StepPending {
			continue
		}

		preds := graph.Predecessors(step.ID)
		settledCount, skippedCount := 0, 0
		for _, predID := range preds {
			st := stepStatus(exec, predID)
			if !st.Settled() {
				continue
			}
			// A failed predecessor only unblocks when it was declared
			// continue_on_error; otherwise the whole execution fails
			// before this point.
			if st == execution.StepFailed {
				pred := def.Step(predID)
				if pred == nil || !pred.ContinueOnError {
					continue
				}
			}
			settledCount++
			if st == execution.StepSkipped {
				skippedCount++
			}
		}
		if settledCount != len(preds) {
			continue
		}

		if len(preds) > 0 && skippedCount == len(preds) {
			if _, err := eng.markSkipped(ctx, exec.ID, step.ID); err != nil {
				return nil, nil, 0, err
			}
			skipped++
			continue
		}

		if step.Type == workflow.StepTypeHumanInput {
			humans = append(humans, step)
			continue
		}
		ready = append(ready, step)
	}
	return ready, humans, skipped, nil
}

// dispatchWave runs one wave of ready steps concurrently, each holding
// a slot of the engine-wide semaphore while it works. Sub-workflow
// steps are the exception: they only block on a child execution whose
// own steps acquire from the same semaphore, so parking the join in a
// slot would starve the child of the capacity it needs to finish. The
// first hard failure cancels the rest of the wave.
func (eng *Engine) dispatchWave(ctx context.Context, def *workflow.Definition, graph *workflow.Graph, execID id.ExecutionID, ready []*workflow.Step) error {
	g, waveCtx := errgroup.WithContext(ctx)
	for _, step := range ready {
		step := step
		if step.Type == workflow.StepTypeSubWorkflow {
			g.Go(func() error {
				return eng.runStep(waveCtx, def, graph, execID, step)
			})
			continue
		}
		if err := eng.sem.Acquire(waveCtx, 1); err != nil {
			//nolint:errcheck
			g.Wait()
			return err
		}
		g.Go(func() error {
			defer eng.sem.Release(1)
			return eng.runStep(waveCtx, def, graph, execID, step)
		})
	}
	return g.Wait()
}

// runStep executes a single step of any dispatchable type and records
// its outcome. A returned error aborts the execution; failures of
// continue_on_error steps are recorded and swallowed here.
func (eng *Engine) runStep(ctx context.Context, def *workflow.Definition, graph *workflow.Graph, execID id.ExecutionID, step *workflow.Step) error {
	exec, err := eng.manager.UpdateStepStatus(ctx, execID, step.ID, execution.StepRunning, execution.StepUpdate{})
	if err != nil {
		return err
	}
	eng.hooks.EmitStepStarted(ctx, exec, step.ID)
	stepStart := time.Now()

	var output map[string]any
	switch step.Type {
	case workflow.StepTypeTrigger:
		output = exec.Input
	case workflow.StepTypeConditional:
		output, err = eng.runConditional(ctx, def, graph, exec, step)
	case workflow.StepTypeSubWorkflow:
		output, err = eng.runSubWorkflow(ctx, exec, step)
	default:
		output, err = eng.dispatchStep(ctx, exec, step)
	}

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return err
		}
		failed, uerr := eng.manager.UpdateStepStatus(ctx, execID, step.ID, execution.StepFailed,
			execution.StepUpdate{Error: err.Error()})
		if uerr != nil {
			return uerr
		}
		eng.hooks.EmitStepFailed(ctx, failed, step.ID, err)
		if step.ContinueOnError {
			eng.logger.Warn("step failed, continuing",
				slog.String("execution_id", execID.String()),
				slog.String("step_id", step.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("step %s: %w", step.ID, err)
	}

	completed, err := eng.manager.UpdateStepStatus(ctx, execID, step.ID, execution.StepCompleted,
		execution.StepUpdate{Output: output})
	if err != nil {
		return err
	}
	eng.hooks.EmitStepCompleted(ctx, completed, step.ID, time.Since(stepStart))
	return nil
}

// markSkipped records a step as skipped and fires the skip hook.
func (eng *Engine) markSkipped(ctx context.Context, execID id.ExecutionID, stepID string) (*execution.Execution, error) {
	exec, err := eng.manager.UpdateStepStatus(ctx, execID, stepID, execution.StepSkipped, execution.StepUpdate{})
	if err != nil {
		return nil, err
	}
	eng.hooks.EmitStepSkipped(ctx, exec, stepID)
	return exec, nil
}

// pauseAt suspends the execution at a human_input step. No goroutine is
// held while paused; Resume restarts the loop.
func (eng *Engine) pauseAt(ctx context.Context, execID id.ExecutionID, stepID string) {
	exec, err := eng.manager.UpdateStatus(ctx, execID, execution.StatusPaused, "", stepID)
	if err != nil {
		eng.logger.Error("cannot pause execution",
			slog.String("execution_id", execID.String()),
			slog.String("step_id", stepID),
			slog.String("error", err.Error()),
		)
		return
	}
	eng.hooks.EmitExecutionPaused(ctx, exec, stepID)
}

// finalize helpers use a fresh context: the run context may already be
// cancelled, and the terminal write must still land.

func (eng *Engine) finalizeCompleted(execID id.ExecutionID, started time.Time) {
	ctx := context.Background()
	exec, err := eng.manager.UpdateStatus(ctx, execID, execution.StatusCompleted, "", "")
	if err != nil {
		eng.logger.Error("cannot complete execution",
			slog.String("execution_id", execID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	eng.hooks.EmitExecutionCompleted(ctx, exec, time.Since(started))
}

func (eng *Engine) finalizeFailed(execID id.ExecutionID, started time.Time, failure error) {
	ctx := context.Background()
	exec, err := eng.manager.UpdateStatus(ctx, execID, execution.StatusFailed, failure.Error(), "")
	if err != nil {
		eng.logger.Error("cannot fail execution",
			slog.String("execution_id", execID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	eng.logger.Error("execution failed",
		slog.String("execution_id", execID.String()),
		slog.Duration("elapsed", time.Since(started)),
		slog.String("error", failure.Error()),
	)
	eng.hooks.EmitExecutionFailed(ctx, exec, failure)
}

func (eng *Engine) finalizeCancelled(execID id.ExecutionID) {
	ctx := context.Background()
	exec, err := eng.manager.UpdateStatus(ctx, execID, execution.StatusCancelled, "", "")
	if err != nil {
		// Cancel() may have finalized the record already.
		return
	}
	eng.hooks.EmitExecutionCancelled(ctx, exec)
}

// stepStatus reads a step's recorded status, treating absent state as
// pending.
func stepStatus(exec *execution.Execution, stepID string) execution.StepStatus {
	if ss, ok := exec.Steps[stepID]; ok {
		return ss.Status
	}
	return execution.StepPending
}

// allSettled reports whether every step in the definition has settled.
func allSettled(def *workflow.Definition, exec *execution.Execution) bool {
	for i := range def.Steps {
		if !stepStatus(exec, def.Steps[i].ID).Settled() {
			return false
		}
	}
	return true
}
