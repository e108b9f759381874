package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/action"
	"github.com/xraph/conductor/backoff"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/hook"
	"github.com/xraph/conductor/id"
	mw "github.com/xraph/conductor/middleware"
	"github.com/xraph/conductor/notify"
	"github.com/xraph/conductor/schema"
	"github.com/xraph/conductor/task"
	"github.com/xraph/conductor/workflow"
)

// instrumentationName is the OTel instrumentation scope for the engine.
const instrumentationName = "github.com/xraph/conductor"

// actionChecker is implemented by executors that can report their
// bindings up front, letting Execute reject workflows referencing
// unknown actions before any record is created.
type actionChecker interface {
	Has(service, action string) bool
}

// Engine wraps an Orchestrator with the full orchestration API.
// Use Build() to create one.
type Engine struct {
	o        *conductor.Orchestrator
	hooks    *hook.Registry
	executor action.Executor
	source   workflow.Source
	manager  *execution.Manager
	tasks    *task.Registry
	broker   *notify.Broker
	sem      *semaphore.Weighted
	chain    mw.Middleware
	mws      []mw.Middleware
	bo       backoff.Strategy
	logger   *slog.Logger
	cfg      conductor.Config

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e hook.Extension) Option {
	return func(eng *Engine) {
		eng.hooks.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's step chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy for failed action calls.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, the metrics middleware uses this provider instead of the
// global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an Orchestrator, a workflow source, and
// an action executor. The Orchestrator's store must implement
// execution.Store.
func Build(o *conductor.Orchestrator, source workflow.Source, executor action.Executor, opts ...Option) (*Engine, error) {
	logger := o.Logger()
	store := o.Store()

	if store == nil {
		return nil, conductor.ErrNoStore
	}
	if executor == nil {
		return nil, conductor.ErrNoExecutor
	}
	if source == nil {
		return nil, fmt.Errorf("conductor: no workflow source configured")
	}

	es, ok := store.(execution.Store)
	if !ok {
		return nil, fmt.Errorf("conductor: store does not implement execution.Store")
	}

	cfg := o.Config()
	eng := &Engine{
		o:        o,
		hooks:    hook.NewRegistry(logger),
		executor: executor,
		source:   source,
		tasks:    task.NewRegistry(logger),
		broker:   notify.NewBroker(logger),
		logger:   logger,
		cfg:      cfg,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	eng.manager = execution.NewManager(es, logger,
		execution.WithConflictRetries(cfg.ConflictRetries),
	)
	eng.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentSteps))

	// The broker is a hook extension like any other; registering it
	// here turns lifecycle events into subscriber notifications.
	eng.hooks.Register(eng.broker)
	o.SetHooks(eng.hooks)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger, cfg.DefaultStepTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)
	eng.chain = mw.Chain(allMws...)

	return eng, nil
}

// Hooks returns the hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Broker returns the notification broker.
func (eng *Engine) Broker() *notify.Broker { return eng.broker }

// Manager returns the execution state manager.
func (eng *Engine) Manager() *execution.Manager { return eng.manager }

// Tasks returns the task registry tracking in-flight executions.
func (eng *Engine) Tasks() *task.Registry { return eng.tasks }

// Orchestrator returns the underlying Orchestrator.
func (eng *Engine) Orchestrator() *conductor.Orchestrator { return eng.o }

// ──────────────────────────────────────────────────
// Orchestration API
// ──────────────────────────────────────────────────

// ExecuteOpts carries the optional fields of an Execute call.
type ExecuteOpts struct {
	// WorkspaceID routes the execution's status events.
	WorkspaceID string
	// AgentID groups the execution under an owning agent.
	AgentID id.AgentID
}

// Execute starts a new execution of the given workflow and returns its
// record as soon as it is durable. Scheduling happens on a background
// goroutine; use Wait, Subscribe, or GetExecutionState to observe
// progress.
//
// The definition is loaded and validated, and — when the executor
// exposes its bindings — every action step is checked against them, all
// before the execution record is created. Input is validated against
// the trigger step's input schema if one is declared.
func (eng *Engine) Execute(ctx context.Context, workflowID id.WorkflowID, input map[string]any, opts ExecuteOpts) (*execution.Execution, error) {
	def, err := eng.source.LoadByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("execute workflow %s: %w", workflowID, err)
	}

	graph, err := workflow.NewGraph(def)
	if err != nil {
		return nil, fmt.Errorf("execute workflow %s: %w", workflowID, err)
	}

	if checker, ok := eng.executor.(actionChecker); ok {
		for i := range def.Steps {
			s := &def.Steps[i]
			if s.Type != workflow.StepTypeAction {
				continue
			}
			if !checker.Has(s.Service, s.Action) {
				return nil, fmt.Errorf("execute workflow %s: step %q action %s.%s: %w",
					workflowID, s.ID, s.Service, s.Action, conductor.ErrHandlerNotFound)
			}
		}
	}

	if trigger := triggerStep(def, graph); trigger != nil && trigger.InputSchema != nil {
		if err := schema.Validate(trigger.ID, "input", trigger.InputSchema, input); err != nil {
			return nil, err
		}
	}

	exec := execution.New(workflowID, input)
	exec.WorkspaceID = opts.WorkspaceID
	exec.AgentID = opts.AgentID
	for k, v := range exec.Input {
		exec.Context[k] = v
	}

	if err := eng.manager.CreateFrom(ctx, exec); err != nil {
		return nil, err
	}

	if err := eng.start(ctx, def, graph, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// start transitions a pending or resumed execution to running and
// launches its run loop. The loop's context is detached from the
// caller's: an Execute caller going away must not cancel the execution.
func (eng *Engine) start(ctx context.Context, def *workflow.Definition, graph *workflow.Graph, exec *execution.Execution) error {
	runCtx, h, err := eng.tasks.Register(context.WithoutCancel(ctx), exec.ID, exec.AgentID)
	if err != nil {
		return fmt.Errorf("start execution %s: %w", exec.ID, err)
	}

	updated, err := eng.manager.UpdateStatus(ctx, exec.ID, execution.StatusRunning, "", "")
	if err != nil {
		eng.tasks.Finish(h)
		return err
	}
	*exec = *updated

	eng.hooks.EmitExecutionStarted(ctx, updated)

	go eng.run(runCtx, h, def, graph, exec.ID, time.Now())
	return nil
}

// Resume delivers external input to a paused execution and restarts
// scheduling. The paused human_input step completes with the provided
// input as its output. Missing required fields leave the execution
// paused and return a MissingInputError.
func (eng *Engine) Resume(ctx context.Context, execID id.ExecutionID, input map[string]any) (*execution.Execution, error) {
	exec, err := eng.manager.Get(ctx, execID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("resume execution %s: %w", execID, conductor.ErrExecutionNotFound)
	}
	if exec.Status != execution.StatusPaused {
		return nil, fmt.Errorf("resume execution %s in status %q: %w", execID, exec.Status, conductor.ErrNotPaused)
	}

	def, err := eng.source.LoadByID(ctx, exec.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("resume execution %s: %w", execID, err)
	}
	graph, err := workflow.NewGraph(def)
	if err != nil {
		return nil, fmt.Errorf("resume execution %s: %w", execID, err)
	}

	pausedStep := def.Step(exec.PausedStepID)
	if pausedStep == nil {
		return nil, fmt.Errorf("resume execution %s: paused step %q: %w", execID, exec.PausedStepID, conductor.ErrStepNotFound)
	}

	var missing []string
	for _, field := range pausedStep.RequiredInputs() {
		if _, ok := input[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, &conductor.MissingInputError{StepID: pausedStep.ID, Fields: missing}
	}
	// Beyond presence, the step's schema constrains types and values
	// the same way action inputs are constrained.
	if err := schema.Validate(pausedStep.ID, "input", pausedStep.InputSchema, input); err != nil {
		return nil, err
	}

	if _, err := eng.manager.UpdateInputs(ctx, execID, input); err != nil {
		return nil, err
	}

	// The human step settles with the delivered input as its output so
	// downstream steps can reference it.
	updated, err := eng.manager.UpdateStepStatus(ctx, execID, pausedStep.ID, execution.StepCompleted, execution.StepUpdate{Output: input})
	if err != nil {
		return nil, err
	}

	eng.hooks.EmitExecutionResumed(ctx, updated, pausedStep.ID)

	if err := eng.start(ctx, def, graph, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel requests cooperative cancellation of an execution. Running
// executions are signalled and joined for up to the configured grace
// period; paused executions are cancelled directly. Terminal executions
// cannot be cancelled.
func (eng *Engine) Cancel(ctx context.Context, execID id.ExecutionID) error {
	exec, err := eng.manager.Get(ctx, execID)
	if err != nil {
		return err
	}
	if exec == nil {
		return fmt.Errorf("cancel execution %s: %w", execID, conductor.ErrExecutionNotFound)
	}
	if exec.Status.Terminal() {
		return fmt.Errorf("cancel execution %s: %w", execID, conductor.ErrTerminalExecution)
	}

	if _, err := eng.tasks.Cancel(ctx, execID, eng.cfg.CancelGracePeriod); err != nil {
		return err
	}

	// The run loop marks the record cancelled when it observes the
	// signal. Paused executions, and loops that outlive the grace
	// period, are finalized here instead.
	exec, err = eng.manager.Get(ctx, execID)
	if err != nil || exec == nil || exec.Status.Terminal() {
		return err
	}
	updated, err := eng.manager.UpdateStatus(ctx, execID, execution.StatusCancelled, "", "")
	if err != nil {
		if errors.Is(err, conductor.ErrTerminalExecution) {
			return nil
		}
		return err
	}
	eng.hooks.EmitExecutionCancelled(ctx, updated)
	return nil
}

// CancelAllForAgent cancels every running execution owned by the agent.
// Returns the number of executions signalled.
func (eng *Engine) CancelAllForAgent(ctx context.Context, agentID id.AgentID) (int, error) {
	return eng.tasks.CancelAllForAgent(ctx, agentID, eng.cfg.CancelGracePeriod)
}

// GetExecutionState returns a deep copy of the execution record, or an
// ErrExecutionNotFound error for unknown IDs.
func (eng *Engine) GetExecutionState(ctx context.Context, execID id.ExecutionID) (*execution.Execution, error) {
	exec, err := eng.manager.Get(ctx, execID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fmt.Errorf("get execution %s: %w", execID, conductor.ErrExecutionNotFound)
	}
	return exec, nil
}

// GetStepOutput returns the recorded output of one step, or nil when
// the step has not produced output.
func (eng *Engine) GetStepOutput(ctx context.Context, execID id.ExecutionID, stepID string) (map[string]any, error) {
	return eng.manager.StepOutput(ctx, execID, stepID)
}

// ListExecutions returns executions matching the given options.
func (eng *Engine) ListExecutions(ctx context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	return eng.manager.Store().ListExecutions(ctx, opts)
}

// Subscribe creates a notification subscriber on the given topics.
// Remove it with eng.Broker().RemoveSubscriber when done.
func (eng *Engine) Subscribe(subscriberID string, topics ...string) *notify.Subscriber {
	return eng.broker.Subscribe(subscriberID, topics...)
}

// Wait blocks until the execution's run loop exits or ctx is done, then
// returns the current record. An execution that pauses at a human_input
// step counts as exited; check the returned status.
func (eng *Engine) Wait(ctx context.Context, execID id.ExecutionID) (*execution.Execution, error) {
	if h, ok := eng.tasks.Lookup(execID); ok {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return eng.GetExecutionState(ctx, execID)
}

// ResumeInterrupted restarts scheduling for executions left in the
// running state with no live run loop — crash recovery after an engine
// restart. Returns the number of executions restarted.
func (eng *Engine) ResumeInterrupted(ctx context.Context) (int, error) {
	execs, err := eng.manager.Store().ListExecutions(ctx, execution.ListOpts{Status: execution.StatusRunning})
	if err != nil {
		return 0, fmt.Errorf("list interrupted executions: %w", err)
	}

	restarted := 0
	for _, exec := range execs {
		if eng.tasks.IsRunning(exec.ID) {
			continue
		}
		def, err := eng.source.LoadByID(ctx, exec.WorkflowID)
		if err != nil {
			eng.logger.Warn("cannot resume interrupted execution",
				slog.String("execution_id", exec.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		graph, err := workflow.NewGraph(def)
		if err != nil {
			eng.logger.Warn("cannot resume interrupted execution",
				slog.String("execution_id", exec.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		runCtx, h, err := eng.tasks.Register(context.WithoutCancel(ctx), exec.ID, exec.AgentID)
		if err != nil {
			continue
		}
		go eng.run(runCtx, h, def, graph, exec.ID, time.Now())
		restarted++
	}

	if restarted > 0 {
		eng.logger.Info("resumed interrupted executions", slog.Int("count", restarted))
	}
	return restarted, nil
}

// Stop gracefully shuts the engine down: in-flight executions are
// signalled and joined for up to the configured shutdown timeout, then
// lifecycle shutdown hooks fire.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.tasks.Shutdown(ctx, eng.cfg.ShutdownTimeout); err != nil {
		return err
	}
	eng.hooks.EmitShutdown(ctx)
	return nil
}

// triggerStep returns the definition's entry step: the first root of
// type trigger, or the first root otherwise. Nil when the graph is
// empty.
func triggerStep(def *workflow.Definition, graph *workflow.Graph) *workflow.Step {
	roots := graph.Roots()
	for _, rootID := range roots {
		if s := def.Step(rootID); s != nil && s.Type == workflow.StepTypeTrigger {
			return s
		}
	}
	if len(roots) > 0 {
		return def.Step(roots[0])
	}
	return nil
}
