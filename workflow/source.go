package workflow

import (
	"context"
	"sync"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/id"
)

// Source resolves a workflow ID to its static definition. The engine
// loads a definition once per execution; later edits to the definition
// never affect a running execution.
type Source interface {
	// LoadByID returns the definition for the given workflow ID.
	// Returns conductor.ErrWorkflowNotFound if the ID is unknown.
	LoadByID(ctx context.Context, workflowID id.WorkflowID) (*Definition, error)
}

// StaticSource is an in-memory Source backed by registered definitions.
// Safe for concurrent use. Registration validates the step graph so
// malformed definitions are rejected up front.
type StaticSource struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewStaticSource creates an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{defs: make(map[string]*Definition)}
}

// Register adds a definition. The step graph is validated; re-registering
// the same ID replaces the previous definition (running executions keep
// the graph they loaded).
func (s *StaticSource) Register(def *Definition) error {
	if _, err := NewGraph(def); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID.String()] = def
	return nil
}

// LoadByID implements Source.
func (s *StaticSource) LoadByID(_ context.Context, workflowID id.WorkflowID) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.defs[workflowID.String()]
	if !ok {
		return nil, conductor.ErrWorkflowNotFound
	}
	return def, nil
}
