// Package workflow defines workflow definitions — the static step graphs
// executions are created from — and the source interface that resolves a
// workflow ID to its definition.
package workflow

import (
	"time"

	"github.com/xraph/conductor/id"
)

// StepType identifies how the engine treats a step.
type StepType string

const (
	// StepTypeTrigger is the entry step of a workflow.
	StepTypeTrigger StepType = "trigger"
	// StepTypeAction dispatches work to the external action executor.
	StepTypeAction StepType = "action"
	// StepTypeConditional evaluates a condition expression to select
	// which outgoing branches activate.
	StepTypeConditional StepType = "conditional"
	// StepTypeSubWorkflow executes a nested workflow and treats its
	// terminal status as this step's result.
	StepTypeSubWorkflow StepType = "sub_workflow"
	// StepTypeHumanInput pauses the execution until externally resumed.
	StepTypeHumanInput StepType = "human_input"
)

// Step is a single node in a workflow's step graph.
type Step struct {
	// ID is unique within the definition.
	ID string `json:"id"`

	Name string   `json:"name,omitempty"`
	Type StepType `json:"type"`

	// Service and Action form the dispatch key for the action executor.
	Service string `json:"service,omitempty"`
	Action  string `json:"action,omitempty"`

	// Parameters may reference prior step outputs via ${step.path}
	// interpolation.
	Parameters map[string]any `json:"parameters,omitempty"`

	// InputSchema and OutputSchema are JSON schemas validated at
	// dispatch time. Nil means no validation.
	InputSchema  map[string]any `json:"input_schema,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`

	// Timeout bounds the action executor call. Zero falls back to the
	// engine's default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxRetries is how many times a failed action call is retried
	// before the step is recorded as failed.
	MaxRetries int `json:"max_retries,omitempty"`

	// ContinueOnError lets downstream steps run even though this step
	// failed.
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	// NextSteps lists the IDs of steps that depend on this one.
	NextSteps []string `json:"next_steps,omitempty"`

	// Condition is an expression evaluated against the execution's
	// context and outputs; only set for conditional steps. A string
	// result selects the matching NextSteps entry; a boolean result
	// selects NextSteps[0] (true) or NextSteps[1] (false).
	Condition string `json:"condition,omitempty"`

	// SubWorkflowID names the nested definition for sub_workflow steps.
	SubWorkflowID id.WorkflowID `json:"sub_workflow_id,omitempty"`
}

// RequiredInputs returns the field names the step's input schema marks
// as required. Used to validate resume input for human_input steps.
func (s *Step) RequiredInputs() []string {
	if s.InputSchema == nil {
		return nil
	}
	raw, ok := s.InputSchema["required"].([]any)
	if !ok {
		return nil
	}
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		if name, isStr := f.(string); isStr {
			fields = append(fields, name)
		}
	}
	return fields
}

// Connection is a directed edge in the step graph.
type Connection struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Trigger describes how an execution of this workflow may be started.
// The engine itself is trigger-agnostic; triggers are metadata for the
// caller layer.
type Trigger struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Definition is a static workflow step graph. It is immutable once
// loaded for a given execution: a running execution is not affected by
// later edits to the definition.
type Definition struct {
	ID          id.WorkflowID `json:"id"`
	Name        string        `json:"name"`
	Steps       []Step        `json:"steps"`
	Connections []Connection  `json:"connections,omitempty"`
	Triggers    []Trigger     `json:"triggers,omitempty"`
}

// Step returns the step with the given ID, or nil if absent.
func (d *Definition) Step(stepID string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == stepID {
			return &d.Steps[i]
		}
	}
	return nil
}
