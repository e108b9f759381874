package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Execution store tests
// ──────────────────────────────────────────────────

func newExec(status execution.Status) *execution.Execution {
	exec := execution.New(id.NewWorkflowID(), map[string]any{"order_id": "ord_42"})
	exec.Status = status
	return exec
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	exec := newExec(execution.StatusPending)
	if err := s.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	got, err := s.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.ID != exec.ID {
		t.Errorf("ID = %v, want %v", got.ID, exec.ID)
	}
	if got.Version != execution.InitialVersion {
		t.Errorf("Version = %d, want %d", got.Version, execution.InitialVersion)
	}
	if got.Input["order_id"] != "ord_42" {
		t.Errorf("Input[order_id] = %v, want ord_42", got.Input["order_id"])
	}
}

func TestCreateDuplicate(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	exec := newExec(execution.StatusPending)
	if err := s.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	err := s.CreateExecution(ctx, exec)
	if !errors.Is(err, conductor.ErrExecutionExists) {
		t.Fatalf("duplicate create error = %v, want ErrExecutionExists", err)
	}
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()
	s := New()

	_, err := s.GetExecution(context.Background(), id.NewExecutionID())
	if !errors.Is(err, conductor.ErrExecutionNotFound) {
		t.Fatalf("error = %v, want ErrExecutionNotFound", err)
	}
}

func TestGetReturnsDeepCopy(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	exec := newExec(execution.StatusPending)
	if err := s.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	first, _ := s.GetExecution(ctx, exec.ID)
	first.Input["order_id"] = "tampered"
	first.Steps["rogue"] = &execution.StepState{ID: "rogue", Status: execution.StepRunning}

	second, _ := s.GetExecution(ctx, exec.ID)
	if second.Input["order_id"] != "ord_42" {
		t.Errorf("stored input mutated through a read copy: %v", second.Input["order_id"])
	}
	if _, ok := second.Steps["rogue"]; ok {
		t.Error("stored steps mutated through a read copy")
	}
}

func TestUpdateIfVersion(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	exec := newExec(execution.StatusPending)
	if err := s.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	exec.Status = execution.StatusRunning
	if err := s.UpdateExecutionIfVersion(ctx, exec, execution.InitialVersion); err != nil {
		t.Fatalf("UpdateExecutionIfVersion: %v", err)
	}
	if exec.Version != execution.InitialVersion+1 {
		t.Errorf("Version = %d, want %d", exec.Version, execution.InitialVersion+1)
	}

	got, _ := s.GetExecution(ctx, exec.ID)
	if got.Status != execution.StatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.Version != execution.InitialVersion+1 {
		t.Errorf("stored Version = %d, want %d", got.Version, execution.InitialVersion+1)
	}
}

func TestUpdateVersionConflict(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	exec := newExec(execution.StatusPending)
	if err := s.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	// First writer wins.
	a, _ := s.GetExecution(ctx, exec.ID)
	b, _ := s.GetExecution(ctx, exec.ID)

	a.Status = execution.StatusRunning
	if err := s.UpdateExecutionIfVersion(ctx, a, a.Version); err != nil {
		t.Fatalf("first write: %v", err)
	}

	b.Status = execution.StatusCancelled
	err := s.UpdateExecutionIfVersion(ctx, b, b.Version)
	if !errors.Is(err, conductor.ErrVersionConflict) {
		t.Fatalf("second write error = %v, want ErrVersionConflict", err)
	}

	got, _ := s.GetExecution(ctx, exec.ID)
	if got.Status != execution.StatusRunning {
		t.Errorf("Status = %q, want running (losing write must not land)", got.Status)
	}
}

func TestUpdateUnknown(t *testing.T) {
	t.Parallel()
	s := New()

	exec := newExec(execution.StatusPending)
	err := s.UpdateExecutionIfVersion(context.Background(), exec, execution.InitialVersion)
	if !errors.Is(err, conductor.ErrExecutionNotFound) {
		t.Fatalf("error = %v, want ErrExecutionNotFound", err)
	}
}

func TestListFiltersAndPagination(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	wfA, wfB := id.NewWorkflowID(), id.NewWorkflowID()

	mk := func(wf id.WorkflowID, status execution.Status, age time.Duration) {
		exec := execution.New(wf, nil)
		exec.Status = status
		exec.CreatedAt = time.Now().UTC().Add(-age)
		if err := s.CreateExecution(ctx, exec); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
	}
	mk(wfA, execution.StatusRunning, 3*time.Hour)
	mk(wfA, execution.StatusCompleted, 2*time.Hour)
	mk(wfB, execution.StatusRunning, time.Hour)

	tests := []struct {
		name string
		opts execution.ListOpts
		want int
	}{
		{"all", execution.ListOpts{}, 3},
		{"by status", execution.ListOpts{Status: execution.StatusRunning}, 2},
		{"by workflow", execution.ListOpts{WorkflowID: wfA}, 2},
		{"status and workflow", execution.ListOpts{Status: execution.StatusRunning, WorkflowID: wfA}, 1},
		{"limit", execution.ListOpts{Limit: 2}, 2},
		{"offset", execution.ListOpts{Offset: 2}, 1},
		{"offset past end", execution.ListOpts{Offset: 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListExecutions(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListExecutions: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestListOrderedByCreation(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	wf := id.NewWorkflowID()
	var ids []id.ExecutionID
	for i := 0; i < 3; i++ {
		exec := execution.New(wf, nil)
		exec.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		ids = append(ids, exec.ID)
		if err := s.CreateExecution(ctx, exec); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
	}

	got, err := s.ListExecutions(ctx, execution.ListOpts{})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	for i, exec := range got {
		if exec.ID != ids[i] {
			t.Errorf("position %d = %v, want %v", i, exec.ID, ids[i])
		}
	}
}
