package task

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

func TestRegisterAndFinish(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	execID := id.NewExecutionID()

	runCtx, h, err := r.Register(context.Background(), execID, id.Nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !r.IsRunning(execID) {
		t.Fatal("IsRunning = false after Register")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	r.Finish(h)
	if r.IsRunning(execID) {
		t.Fatal("IsRunning = true after Finish")
	}
	select {
	case <-h.Done():
	default:
		t.Fatal("Done channel not closed after Finish")
	}
	if runCtx.Err() == nil {
		t.Fatal("run context not cancelled after Finish")
	}

	// Finish is idempotent.
	r.Finish(h)
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	execID := id.NewExecutionID()

	_, _, err := r.Register(context.Background(), execID, id.Nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, _, err = r.Register(context.Background(), execID, id.Nil)
	if !errors.Is(err, conductor.ErrExecutionExists) {
		t.Fatalf("error = %v, want ErrExecutionExists", err)
	}
}

func TestCancelJoinsRunLoop(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	execID := id.NewExecutionID()

	runCtx, h, err := r.Register(context.Background(), execID, id.Nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Simulated run loop: exits at the next boundary after cancellation.
	go func() {
		<-runCtx.Done()
		r.Finish(h)
	}()

	joined, err := r.Cancel(context.Background(), execID, time.Second)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !joined {
		t.Fatal("Cancel reported no tracked run loop")
	}
	if r.IsRunning(execID) {
		t.Fatal("execution still tracked after cancel join")
	}
}

func TestCancelUnknownExecution(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	joined, err := r.Cancel(context.Background(), id.NewExecutionID(), time.Second)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if joined {
		t.Fatal("Cancel reported a run loop for an untracked ID")
	}
}

func TestCancelGracePeriodExpires(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	execID := id.NewExecutionID()

	// Run loop that never exits.
	_, h, err := r.Register(context.Background(), execID, id.Nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer r.Finish(h)

	start := time.Now()
	joined, err := r.Cancel(context.Background(), execID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !joined {
		t.Fatal("Cancel should report the signal was delivered")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("Cancel returned before grace period: %v", elapsed)
	}
}

func TestCancelAllForAgent(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	agent := id.NewAgentID()
	other := id.NewAgentID()

	var handles []*Handle
	for i := 0; i < 3; i++ {
		runCtx, h, err := r.Register(context.Background(), id.NewExecutionID(), agent)
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		handles = append(handles, h)
		go func(ctx context.Context, h *Handle) {
			<-ctx.Done()
			r.Finish(h)
		}(runCtx, h)
	}

	// Execution owned by a different agent must not be signalled.
	otherCtx, otherHandle, err := r.Register(context.Background(), id.NewExecutionID(), other)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer r.Finish(otherHandle)

	n, err := r.CancelAllForAgent(context.Background(), agent, time.Second)
	if err != nil {
		t.Fatalf("CancelAllForAgent: %v", err)
	}
	if n != 3 {
		t.Fatalf("signalled %d executions, want 3", n)
	}
	for _, h := range handles {
		select {
		case <-h.Done():
		default:
			t.Fatal("agent execution not joined")
		}
	}
	if otherCtx.Err() != nil {
		t.Fatal("other agent's execution was cancelled")
	}
}

func TestIsAgentRunning(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	agent := id.NewAgentID()

	if r.IsAgentRunning(agent) {
		t.Fatal("IsAgentRunning = true on empty registry")
	}

	_, h, err := r.Register(context.Background(), id.NewExecutionID(), agent)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !r.IsAgentRunning(agent) {
		t.Fatal("IsAgentRunning = false for tracked agent")
	}
	if r.IsAgentRunning(id.NewAgentID()) {
		t.Fatal("IsAgentRunning = true for unknown agent")
	}

	r.Finish(h)
	if r.IsAgentRunning(agent) {
		t.Fatal("IsAgentRunning = true after Finish")
	}
}

func TestCleanupFinished(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())

	_, live, err := r.Register(context.Background(), id.NewExecutionID(), id.Nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer r.Finish(live)

	_, dead, err := r.Register(context.Background(), id.NewExecutionID(), id.Nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Simulate a run loop that exited without unregistering.
	dead.once.Do(func() {
		dead.cancel()
		close(dead.done)
	})

	if n := r.CleanupFinished(); n != 1 {
		t.Fatalf("CleanupFinished = %d, want 1", n)
	}
	if r.IsRunning(dead.ExecutionID) {
		t.Fatal("dead execution still tracked after cleanup")
	}
	if !r.IsRunning(live.ExecutionID) {
		t.Fatal("live execution was collected")
	}
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	for i := 0; i < 4; i++ {
		runCtx, h, err := r.Register(context.Background(), id.NewExecutionID(), id.Nil)
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		go func(ctx context.Context, h *Handle) {
			<-ctx.Done()
			r.Finish(h)
		}(runCtx, h)
	}

	if err := r.Shutdown(context.Background(), time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d after shutdown, want 0", r.Len())
	}
}
