package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	ah "github.com/xraph/conductor/audit_hook"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

// ── Test helpers ─────────────────────────────────────

func newTestExecution() *execution.Execution {
	ex := execution.New(id.NewWorkflowID(), map[string]any{"order": "ord_1"})
	ex.WorkspaceID = "ws_1"
	ex.Steps["charge"] = &execution.StepState{
		ID:      "charge",
		Status:  execution.StepRunning,
		Attempt: 2,
	}
	return ex
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

// ── Execution lifecycle tests ────────────────────────

func TestExtension_ExecutionStarted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	ctx := context.Background()
	ex := newTestExecution()

	if err := e.OnExecutionStarted(ctx, ex); err != nil {
		t.Fatalf("OnExecutionStarted: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionExecutionStarted {
		t.Errorf("Action: want %q, got %q", ah.ActionExecutionStarted, evt.Action)
	}
	if evt.Resource != ah.ResourceExecution {
		t.Errorf("Resource: want %q, got %q", ah.ResourceExecution, evt.Resource)
	}
	if evt.Category != ah.CategoryExecution {
		t.Errorf("Category: want %q, got %q", ah.CategoryExecution, evt.Category)
	}
	if evt.ResourceID != ex.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", ex.ID.String(), evt.ResourceID)
	}
	if evt.Severity != ah.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", ah.SeverityInfo, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeSuccess, evt.Outcome)
	}
	if evt.Metadata["workspace_id"] != "ws_1" {
		t.Errorf("workspace_id metadata = %v", evt.Metadata["workspace_id"])
	}
}

func TestExtension_ExecutionFailedIsCritical(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	ex := newTestExecution()

	if err := e.OnExecutionFailed(context.Background(), ex, errors.New("step charge: smtp down")); err != nil {
		t.Fatalf("OnExecutionFailed: %v", err)
	}

	evt := rec.last()
	if evt.Severity != ah.SeverityCritical {
		t.Errorf("Severity: want critical, got %q", evt.Severity)
	}
	if evt.Outcome != ah.OutcomeFailure {
		t.Errorf("Outcome: want failure, got %q", evt.Outcome)
	}
	if evt.Reason != "step charge: smtp down" {
		t.Errorf("Reason = %q", evt.Reason)
	}
	if evt.Metadata["error"] != "step charge: smtp down" {
		t.Errorf("error metadata = %v", evt.Metadata["error"])
	}
}

func TestExtension_ExecutionCancelledIsWarning(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnExecutionCancelled(context.Background(), newTestExecution()); err != nil {
		t.Fatalf("OnExecutionCancelled: %v", err)
	}
	if evt := rec.last(); evt.Severity != ah.SeverityWarning {
		t.Errorf("Severity: want warning, got %q", evt.Severity)
	}
}

func TestExtension_ExecutionForkedCarriesLineage(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	src := newTestExecution()
	fork := newTestExecution()

	if err := e.OnExecutionForked(context.Background(), src, fork, "charge"); err != nil {
		t.Fatalf("OnExecutionForked: %v", err)
	}

	evt := rec.last()
	if evt.ResourceID != fork.ID.String() {
		t.Errorf("ResourceID: want the fork's id, got %q", evt.ResourceID)
	}
	if evt.Metadata["forked_from"] != src.ID.String() {
		t.Errorf("forked_from = %v", evt.Metadata["forked_from"])
	}
	if evt.Metadata["from_step_id"] != "charge" {
		t.Errorf("from_step_id = %v", evt.Metadata["from_step_id"])
	}
}

func TestExtension_PausedAndResumedCarryStep(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	ctx := context.Background()
	ex := newTestExecution()

	if err := e.OnExecutionPaused(ctx, ex, "approve"); err != nil {
		t.Fatalf("OnExecutionPaused: %v", err)
	}
	if evt := rec.findByAction(ah.ActionExecutionPaused); evt == nil || evt.Metadata["paused_step_id"] != "approve" {
		t.Errorf("paused event metadata = %+v", evt)
	}

	if err := e.OnExecutionResumed(ctx, ex, "approve"); err != nil {
		t.Fatalf("OnExecutionResumed: %v", err)
	}
	if evt := rec.findByAction(ah.ActionExecutionResumed); evt == nil || evt.Metadata["resumed_step_id"] != "approve" {
		t.Errorf("resumed event metadata = %+v", evt)
	}
}

// ── Step lifecycle tests ─────────────────────────────

func TestExtension_StepEvents(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	ctx := context.Background()
	ex := newTestExecution()

	if err := e.OnStepStarted(ctx, ex, "charge"); err != nil {
		t.Fatalf("OnStepStarted: %v", err)
	}
	if err := e.OnStepCompleted(ctx, ex, "charge", 150*time.Millisecond); err != nil {
		t.Fatalf("OnStepCompleted: %v", err)
	}
	if err := e.OnStepFailed(ctx, ex, "charge", errors.New("declined")); err != nil {
		t.Fatalf("OnStepFailed: %v", err)
	}
	if err := e.OnStepSkipped(ctx, ex, "refund"); err != nil {
		t.Fatalf("OnStepSkipped: %v", err)
	}

	started := rec.findByAction(ah.ActionStepStarted)
	if started == nil || started.Metadata["attempt"] != 2 {
		t.Errorf("step.started attempt = %+v", started)
	}
	completed := rec.findByAction(ah.ActionStepCompleted)
	if completed == nil || completed.Metadata["elapsed_ms"] != int64(150) {
		t.Errorf("step.completed elapsed = %+v", completed)
	}
	failed := rec.findByAction(ah.ActionStepFailed)
	if failed == nil || failed.Severity != ah.SeverityWarning || failed.Reason != "declined" {
		t.Errorf("step.failed event = %+v", failed)
	}
	skipped := rec.findByAction(ah.ActionStepSkipped)
	if skipped == nil || skipped.ResourceID != "refund" {
		t.Errorf("step.skipped event = %+v", skipped)
	}
	if rec.count() != 4 {
		t.Errorf("recorded %d events, want 4", rec.count())
	}
}

// ── Filtering and resilience ─────────────────────────

func TestExtension_WithActionsFilters(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionExecutionFailed))
	ctx := context.Background()
	ex := newTestExecution()

	if err := e.OnExecutionStarted(ctx, ex); err != nil {
		t.Fatalf("OnExecutionStarted: %v", err)
	}
	if err := e.OnExecutionFailed(ctx, ex, errors.New("boom")); err != nil {
		t.Fatalf("OnExecutionFailed: %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("recorded %d events, want 1 (only the enabled action)", rec.count())
	}
	if rec.last().Action != ah.ActionExecutionFailed {
		t.Errorf("recorded action = %q", rec.last().Action)
	}
}

func TestExtension_RecorderErrorSwallowed(t *testing.T) {
	failing := ah.RecorderFunc(func(_ context.Context, _ *ah.AuditEvent) error {
		return errors.New("audit store down")
	})
	e := ah.New(failing, ah.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	if err := e.OnExecutionStarted(context.Background(), newTestExecution()); err != nil {
		t.Fatalf("recorder failure must not propagate, got %v", err)
	}
}

func TestAllActionsCoversEveryConstant(t *testing.T) {
	if got := len(ah.AllActions()); got != 11 {
		t.Errorf("AllActions returned %d actions, want 11", got)
	}
}
