// Package notify provides a real-time event broker for Conductor
// lifecycle events. It bridges the hook.Extension system to connected
// clients via topic-based pub/sub scoped by workspace.
//
// Delivery is best-effort: events are dropped for slow or absent
// subscribers and are never replayed. Durable state lives in the
// execution store, not on the bus.
package notify

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Execution events.
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionPaused    EventType = "execution.paused"
	EventExecutionResumed   EventType = "execution.resumed"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventExecutionCancelled EventType = "execution.cancelled"
	EventExecutionForked    EventType = "execution.forked"

	// Step events.
	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
	EventStepSkipped   EventType = "step.skipped"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Version is the execution record's version after the mutation
	// that produced the event. Subscribers can order events of one
	// execution by it; delivery order across concurrent steps is not
	// otherwise guaranteed.
	Version int64 `json:"version,omitempty"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// WorkspaceID scopes the event to its workspace channel.
	WorkspaceID string `json:"workspace_id,omitempty"`

	// Origin identifies the broker instance that first published the
	// event. The Redis bridge uses it to suppress echo when events
	// round-trip through the shared channel.
	Origin string `json:"origin,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// ExecutionEventData is the payload for execution lifecycle events.
type ExecutionEventData struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	Status      string `json:"status"`
	StepID      string `json:"step_id,omitempty"`
	ForkedFrom  string `json:"forked_from,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
	Error       string `json:"error,omitempty"`
}

// StepEventData is the payload for step lifecycle events.
type StepEventData struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	StepID      string `json:"step_id"`
	Status      string `json:"status"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
	Error       string `json:"error,omitempty"`
}
