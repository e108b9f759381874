// Package task tracks in-flight execution goroutines and implements
// cooperative cancellation with a bounded grace period.
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// Handle represents one registered in-flight execution. The engine's
// run loop derives its context from the handle and closes the handle
// when the loop exits, whatever the outcome.
type Handle struct {
	ExecutionID id.ExecutionID
	AgentID     id.AgentID

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Done returns a channel closed when the execution's run loop exits.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Registry tracks running executions by ID so that Cancel requests can
// reach the owning goroutine. Cancellation is cooperative: cancelling
// signals the execution's context, and the run loop observes it at the
// next step boundary. In-flight action calls are never killed mid-step.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	running map[id.ExecutionID]*Handle
}

// NewRegistry creates an empty task registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		running: make(map[id.ExecutionID]*Handle),
	}
}

// Register derives a cancellable context for an execution's run loop
// and tracks the handle. It fails if the execution is already tracked,
// which guards against double-dispatch of the same record.
func (r *Registry) Register(ctx context.Context, execID id.ExecutionID, agentID id.AgentID) (context.Context, *Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.running[execID]; dup {
		return nil, nil, conductor.ErrExecutionExists
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ExecutionID: execID,
		AgentID:     agentID,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	r.running[execID] = h
	return runCtx, h, nil
}

// Finish marks the execution's run loop as exited and stops tracking
// it. Safe to call more than once.
func (r *Registry) Finish(h *Handle) {
	h.once.Do(func() {
		h.cancel()
		close(h.done)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.running[h.ExecutionID]; ok && cur == h {
		delete(r.running, h.ExecutionID)
	}
}

// Lookup returns the handle for a tracked execution.
func (r *Registry) Lookup(execID id.ExecutionID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.running[execID]
	return h, ok
}

// IsRunning reports whether the execution has a tracked run loop.
func (r *Registry) IsRunning(execID id.ExecutionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[execID]
	return ok
}

// IsAgentRunning reports whether the agent owns any tracked run loop.
func (r *Registry) IsAgentRunning(agentID id.AgentID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.running {
		if h.AgentID == agentID {
			return true
		}
	}
	return false
}

// CleanupFinished drops handles whose run loop already exited but that
// are still tracked, and returns how many were collected. The run loop
// unregisters itself through Finish on every exit path, so this is a
// safety net for callers holding handles across restarts, not part of
// the normal lifecycle.
func (r *Registry) CleanupFinished() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for execID, h := range r.running {
		select {
		case <-h.done:
			delete(r.running, execID)
			n++
		default:
		}
	}
	return n
}

// Len returns the number of tracked executions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Cancel signals the execution's context and waits up to grace for the
// run loop to exit. It returns (false, nil) when no run loop is
// tracked for the ID: paused and terminal executions have no goroutine
// to cancel, and the caller handles them through the store instead.
//
// A true result means the run loop observed the signal and exited
// within the grace period.
func (r *Registry) Cancel(ctx context.Context, execID id.ExecutionID, grace time.Duration) (bool, error) {
	r.mu.Lock()
	h, ok := r.running[execID]
	r.mu.Unlock()
	if !ok {
		return false, nil
	}

	h.cancel()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-h.done:
		return true, nil
	case <-timer.C:
		r.logger.Warn("execution did not stop within grace period",
			slog.String("execution_id", execID.String()),
			slog.Duration("grace", grace),
		)
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// CancelAllForAgent signals every tracked execution owned by the agent
// and waits up to grace for all of them collectively. It returns the
// number of executions signalled.
func (r *Registry) CancelAllForAgent(ctx context.Context, agentID id.AgentID, grace time.Duration) (int, error) {
	r.mu.Lock()
	var handles []*Handle
	for _, h := range r.running {
		if h.AgentID == agentID {
			handles = append(handles, h)
		}
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	for _, h := range handles {
		select {
		case <-h.done:
		case <-timer.C:
			r.logger.Warn("agent executions did not stop within grace period",
				slog.String("agent_id", agentID.String()),
				slog.Duration("grace", grace),
			)
			return len(handles), nil
		case <-ctx.Done():
			return len(handles), ctx.Err()
		}
	}
	return len(handles), nil
}

// Shutdown signals every tracked execution and waits up to grace for
// all run loops to exit.
func (r *Registry) Shutdown(ctx context.Context, grace time.Duration) error {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.running))
	for _, h := range r.running {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	for _, h := range handles {
		select {
		case <-h.done:
		case <-timer.C:
			r.logger.Warn("executions still running at shutdown deadline",
				slog.Int("remaining", r.Len()),
			)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
