// Package memory provides an in-process execution store. It honors the
// full versioned-write contract, so engines tested against it behave
// identically against the durable stores. Not for multi-process use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/id"
)

// Store is a map-backed execution store with optimistic-concurrency
// writes. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	execs map[id.ExecutionID]*execution.Execution
}

var (
	_ execution.Store  = (*Store)(nil)
	_ conductor.Storer = (*Store)(nil)
)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{execs: make(map[id.ExecutionID]*execution.Execution)}
}

// Migrate is a no-op; there is no schema to manage.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// CreateExecution implements execution.Store.
func (s *Store) CreateExecution(_ context.Context, exec *execution.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.execs[exec.ID]; ok {
		return fmt.Errorf("create execution %s: %w", exec.ID, conductor.ErrExecutionExists)
	}
	s.execs[exec.ID] = exec.Clone()
	return nil
}

// GetExecution implements execution.Store. The returned record is a
// deep copy; callers cannot reach the stored state through it.
func (s *Store) GetExecution(_ context.Context, execID id.ExecutionID) (*execution.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.execs[execID]
	if !ok {
		return nil, fmt.Errorf("get execution %s: %w", execID, conductor.ErrExecutionNotFound)
	}
	return exec.Clone(), nil
}

// UpdateExecutionIfVersion implements execution.Store.
func (s *Store) UpdateExecutionIfVersion(_ context.Context, exec *execution.Execution, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.execs[exec.ID]
	if !ok {
		return fmt.Errorf("update execution %s: %w", exec.ID, conductor.ErrExecutionNotFound)
	}
	if stored.Version != expected {
		return fmt.Errorf("update execution %s at version %d, stored %d: %w",
			exec.ID, expected, stored.Version, conductor.ErrVersionConflict)
	}

	exec.Version = expected + 1
	s.execs[exec.ID] = exec.Clone()
	return nil
}

// ListExecutions implements execution.Store. Results are ordered by
// creation time, oldest first.
func (s *Store) ListExecutions(_ context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*execution.Execution
	for _, exec := range s.execs {
		if opts.Status != "" && exec.Status != opts.Status {
			continue
		}
		if !opts.WorkflowID.IsNil() && exec.WorkflowID != opts.WorkflowID {
			continue
		}
		out = append(out, exec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Len returns the number of stored executions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.execs)
}
