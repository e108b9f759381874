package engine

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/workflow"
)

// runConditional evaluates a conditional step's expression against the
// execution context and selects which outgoing branch stays live. A
// boolean result selects next_steps[0] (true) or next_steps[1] (false);
// a string result selects the branch with that ID. Every non-selected
// successor still pending is marked skipped, which cascades through its
// exclusive descendants on the next scheduling pass.
func (eng *Engine) runConditional(ctx context.Context, def *workflow.Definition, graph *workflow.Graph, exec *execution.Execution, step *workflow.Step) (map[string]any, error) {
	branches := step.NextSteps
	if len(branches) == 0 {
		branches = graph.Successors(step.ID)
	}

	result, err := evalCondition(step.Condition, exec.Context)
	if err != nil {
		return nil, fmt.Errorf("condition of step %s: %w", step.ID, err)
	}

	var selected string
	switch v := result.(type) {
	case bool:
		if v {
			if len(branches) > 0 {
				selected = branches[0]
			}
		} else if len(branches) > 1 {
			selected = branches[1]
		}
	case string:
		for _, b := range branches {
			if b == v {
				selected = b
				break
			}
		}
		if selected == "" {
			return nil, fmt.Errorf("condition of step %s selected unknown branch %q", step.ID, v)
		}
	default:
		return nil, fmt.Errorf("condition of step %s evaluated to %T, want bool or string", step.ID, result)
	}

	// Fresh record: earlier steps in the same wave may have settled
	// since exec was read.
	current, err := eng.manager.Get(ctx, exec.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("conditional step %s: %w", step.ID, conductor.ErrExecutionNotFound)
	}
	for _, succID := range graph.Successors(step.ID) {
		if succID == selected {
			continue
		}
		if stepStatus(current, succID) != execution.StepPending {
			continue
		}
		if _, err := eng.markSkipped(ctx, exec.ID, succID); err != nil {
			return nil, err
		}
	}

	return map[string]any{
		"result":        result,
		"selected_step": selected,
	}, nil
}

// evalCondition compiles and runs an expression against the execution
// context. Undefined variables are allowed so conditions can reference
// steps that were skipped.
func evalCondition(src string, env map[string]any) (any, error) {
	if src == "" {
		return nil, fmt.Errorf("empty condition expression")
	}
	program, err := expr.Compile(src, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}
