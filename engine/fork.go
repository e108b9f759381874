package engine

import (
	"context"
	"fmt"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/workflow"
)

// Fork creates a new execution that replays the source from a chosen
// step. The fork inherits the recorded states and outputs of the step
// and its ancestors, so scheduling naturally resumes at the step's
// successors; everything downstream starts over as pending and the
// inherited prefix is never re-run. Overlay values are merged over the
// source's input and written onto the context after the inherited
// prefix, so the replayed tail sees them even where an inherited step
// output shares a key. The source execution is never mutated, and the
// fork is an independent record starting at the initial version.
//
// The source must carry a recorded StepState for fromStepID;
// forking from a step the source never reached is an
// ErrStepNotFound error.
func (eng *Engine) Fork(ctx context.Context, sourceID id.ExecutionID, fromStepID string, overlay map[string]any) (*execution.Execution, error) {
	src, err := eng.GetExecutionState(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	def, err := eng.source.LoadByID(ctx, src.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("fork execution %s: %w", sourceID, err)
	}
	graph, err := workflow.NewGraph(def)
	if err != nil {
		return nil, fmt.Errorf("fork execution %s: %w", sourceID, err)
	}
	if def.Step(fromStepID) == nil {
		return nil, fmt.Errorf("fork execution %s from step %q: %w", sourceID, fromStepID, conductor.ErrStepNotFound)
	}
	if _, recorded := src.Steps[fromStepID]; !recorded {
		return nil, fmt.Errorf("fork execution %s from step %q: no recorded step state: %w",
			sourceID, fromStepID, conductor.ErrStepNotFound)
	}

	fork := execution.New(src.WorkflowID, src.Input)
	fork.WorkspaceID = src.WorkspaceID
	fork.AgentID = src.AgentID
	fork.ForkedFrom = src.ID
	for k, v := range fork.Input {
		fork.Context[k] = v
	}

	// Carry over the prefix up to and including fromStepID. Steps not
	// on an ancestor path are excluded even when the source recorded
	// them, so the fork re-derives everything outside the prefix.
	for stepID := range graph.Ancestors(fromStepID) {
		ss, ok := src.Steps[stepID]
		if !ok || !ss.Status.Settled() {
			// Unsettled ancestors re-run in the fork.
			continue
		}
		fork.Steps[stepID] = ss.Clone()
		if out, hasOut := src.Outputs[stepID]; hasOut {
			fork.Outputs[stepID] = out
			fork.Context[stepID] = out
		}
	}

	// The overlay lands last: it wins over inherited outputs that
	// share a key. A source started with no input has a nil map.
	if fork.Input == nil && len(overlay) > 0 {
		fork.Input = make(map[string]any, len(overlay))
	}
	for k, v := range overlay {
		fork.Input[k] = v
		fork.Context[k] = v
	}

	if err := eng.manager.CreateFrom(ctx, fork); err != nil {
		return nil, err
	}
	eng.hooks.EmitExecutionForked(ctx, src, fork, fromStepID)

	if err := eng.start(ctx, def, graph, fork); err != nil {
		return nil, err
	}
	return fork, nil
}
