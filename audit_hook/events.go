package audithook

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionExecutionStarted   = "execution.started"
	ActionExecutionPaused    = "execution.paused"
	ActionExecutionResumed   = "execution.resumed"
	ActionExecutionCompleted = "execution.completed"
	ActionExecutionFailed    = "execution.failed"
	ActionExecutionCancelled = "execution.cancelled"
	ActionExecutionForked    = "execution.forked"
	ActionStepStarted        = "step.started"
	ActionStepCompleted      = "step.completed"
	ActionStepFailed         = "step.failed"
	ActionStepSkipped        = "step.skipped"
)

// Audit event categories group related actions.
const (
	CategoryExecution = "conductor.execution"
	CategoryStep      = "conductor.step"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceExecution = "execution"
	ResourceStep      = "execution_step"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionExecutionStarted,
		ActionExecutionPaused,
		ActionExecutionResumed,
		ActionExecutionCompleted,
		ActionExecutionFailed,
		ActionExecutionCancelled,
		ActionExecutionForked,
		ActionStepStarted,
		ActionStepCompleted,
		ActionStepFailed,
		ActionStepSkipped,
	}
}
