// Package action defines the contract between the orchestrator and the
// systems that actually perform work, and provides a typed in-process
// registry for binding (service, action) pairs to handler functions.
package action

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/conductor"
)

// Executor invokes a named action on behalf of a workflow step. The
// orchestrator treats the executor as a black box: params are the fully
// interpolated step parameters, execCtx is the execution's accumulated
// context, and the returned map becomes the step's output.
//
// Implementations must honor ctx cancellation and deadlines; the engine
// derives a per-step timeout context before every call.
type Executor interface {
	Invoke(ctx context.Context, service, action string, params, execCtx map[string]any) (map[string]any, error)
}

// Handler performs one action. Handlers receive the interpolated step
// parameters and the execution context, and return the step output.
type Handler func(ctx context.Context, params, execCtx map[string]any) (map[string]any, error)

type key struct {
	service string
	action  string
}

// Registry maps (service, action) keys to statically registered
// handlers. Registration happens at startup; lookups at execution time
// are read-only, so the registry is safe for concurrent use.
//
// Registry implements Executor.
type Registry struct {
	mu       sync.RWMutex
	handlers map[key]Handler
}

var _ Executor = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[key]Handler)}
}

// Register binds a handler to a (service, action) pair. Registering the
// same pair twice is an error; bindings are meant to be declared once
// at startup so that workflow definitions can be checked against them
// before any execution record is created.
func (r *Registry) Register(service, action string, h Handler) error {
	if service == "" || action == "" {
		return fmt.Errorf("register action: service and action must be non-empty")
	}
	if h == nil {
		return fmt.Errorf("register action %s.%s: nil handler", service, action)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{service: service, action: action}
	if _, dup := r.handlers[k]; dup {
		return fmt.Errorf("register action %s.%s: already registered", service, action)
	}
	r.handlers[k] = h
	return nil
}

// MustRegister is Register that panics on error, for static wiring in
// package init or main.
func (r *Registry) MustRegister(service, action string, h Handler) {
	if err := r.Register(service, action, h); err != nil {
		panic(err)
	}
}

// Has reports whether a handler is bound for the pair.
func (r *Registry) Has(service, action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[key{service: service, action: action}]
	return ok
}

// Actions returns the registered (service, action) pairs as
// "service.action" strings, sorted. Useful for startup logging and
// introspection endpoints.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k.service+"."+k.action)
	}
	sort.Strings(out)
	return out
}

// Invoke dispatches to the bound handler.
func (r *Registry) Invoke(ctx context.Context, service, action string, params, execCtx map[string]any) (map[string]any, error) {
	r.mu.RLock()
	h, ok := r.handlers[key{service: service, action: action}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("invoke %s.%s: %w", service, action, conductor.ErrHandlerNotFound)
	}
	return h(ctx, params, execCtx)
}
