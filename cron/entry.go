package cron

import (
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/conductor/id"
)

// Entry is one registered recurring trigger.
type Entry struct {
	// Name uniquely identifies the entry within the scheduler.
	Name string

	// WorkflowID names the workflow each firing executes.
	WorkflowID id.WorkflowID

	// Schedule is the cron expression the entry was registered with.
	Schedule string

	// Input is passed to every execution the entry starts.
	Input map[string]any

	// WorkspaceID routes the started executions' status events.
	WorkspaceID string

	// Enabled entries fire; disabled entries are kept but skipped.
	Enabled bool

	// NextRunAt is when the entry is next due.
	NextRunAt time.Time

	// LastRunAt is when the entry last fired. Zero until the first run.
	LastRunAt time.Time

	schedule cronlib.Schedule
}
