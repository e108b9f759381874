package conductor

import (
	"context"
	"log/slog"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// Storer is the minimal store interface held by the Orchestrator.
// It covers lifecycle operations only. The full contract
// (store.Store) is used in the subsystem layers that don't create
// import cycles. Implementations satisfy store.Store which embeds the
// execution store interface.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// hookEmitter is an internal interface for lifecycle shutdown events.
type hookEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Orchestrator is the central coordinator for workflow execution.
//
// Create one with New() and functional options, then use engine.Build
// to wire the definition source, action executor, state manager, task
// registry, and notification broker on top of it. The Orchestrator
// holds references via internal interfaces to avoid import cycles.
type Orchestrator struct {
	config Config
	logger *slog.Logger
	store  Storer
	hooks  hookEmitter
}

// New creates a new Orchestrator with the given options.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Logger returns the orchestrator's logger.
func (o *Orchestrator) Logger() *slog.Logger { return o.logger }

// Store returns the orchestrator's store.
func (o *Orchestrator) Store() Storer { return o.store }

// Config returns a copy of the orchestrator's configuration.
func (o *Orchestrator) Config() Config { return o.config }

// SetHooks sets the hook emitter (called by the engine package).
func (o *Orchestrator) SetHooks(h hookEmitter) { o.hooks = h }

// Close shuts the orchestrator down, emitting the shutdown hook and
// closing the store.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.hooks != nil {
		o.hooks.EmitShutdown(ctx)
	}
	if o.store != nil {
		return o.store.Close()
	}
	return nil
}

// WithMaxConcurrentSteps bounds concurrent step dispatch across all
// executions on this instance.
func WithMaxConcurrentSteps(n int) Option {
	return func(o *Orchestrator) error {
		o.config.MaxConcurrentSteps = n
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) error {
		o.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the orchestrator.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) error {
		o.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the orchestrator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds the execution store interface.
func WithStore(s Storer) Option {
	return func(o *Orchestrator) error {
		o.store = s
		return nil
	}
}
