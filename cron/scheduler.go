package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/workflow"
)

// TriggerTypeCron is the trigger type this scheduler consumes from
// workflow definitions.
const TriggerTypeCron = "cron"

// ExecuteFunc is the callback the scheduler uses to start executions.
// This breaks the import cycle: the engine provides the implementation.
type ExecuteFunc func(ctx context.Context, workflowID id.WorkflowID, input map[string]any, workspaceID string) (id.ExecutionID, error)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler fires registered cron entries on a tick loop, starting a
// workflow execution for each due entry.
type Scheduler struct {
	execute ExecuteFunc
	logger  *slog.Logger

	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*Entry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(execute ExecuteFunc, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		execute:      execute,
		logger:       logger,
		tickInterval: 1 * time.Second,
		entries:      make(map[string]*Entry),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds an entry. The schedule is parsed and validated;
// re-registering an existing name is an error.
func (s *Scheduler) Register(e *Entry) error {
	sched, err := ParseSchedule(e.Schedule)
	if err != nil {
		return fmt.Errorf("cron entry %q: parse schedule %q: %w", e.Name, e.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[e.Name]; exists {
		return fmt.Errorf("cron entry %q already registered", e.Name)
	}

	e.schedule = sched
	e.NextRunAt = sched.Next(time.Now().UTC())
	s.entries[e.Name] = e
	return nil
}

// RegisterWorkflow registers one entry per cron trigger on the
// definition. Entry names are "<definition name>#<n>". Returns the
// number of entries registered.
func (s *Scheduler) RegisterWorkflow(def *workflow.Definition, workspaceID string) (int, error) {
	n := 0
	for i, trg := range def.Triggers {
		if trg.Type != TriggerTypeCron {
			continue
		}
		schedule, _ := trg.Config["schedule"].(string)
		if schedule == "" {
			return n, fmt.Errorf("workflow %s trigger %d: cron trigger has no schedule", def.ID, i)
		}
		input, _ := trg.Config["input"].(map[string]any)

		err := s.Register(&Entry{
			Name:        fmt.Sprintf("%s#%d", def.Name, i),
			WorkflowID:  def.ID,
			Schedule:    schedule,
			Input:       input,
			WorkspaceID: workspaceID,
			Enabled:     true,
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Remove deletes an entry by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

// SetEnabled toggles an entry without losing its registration.
func (s *Scheduler) SetEnabled(name string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	e.Enabled = enabled
	return true
}

// Entries returns a snapshot of all registered entries.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// Start launches the tick loop.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the loop to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	now := time.Now().UTC()

	s.mu.Lock()
	var due []*Entry
	for _, e := range s.entries {
		if !e.Enabled || e.NextRunAt.After(now) {
			continue
		}
		e.LastRunAt = now
		e.NextRunAt = e.schedule.Next(now)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fire(e, now)
	}
}

func (s *Scheduler) fire(e *Entry, now time.Time) {
	ctx := context.Background()
	execID, err := s.execute(ctx, e.WorkflowID, e.Input, e.WorkspaceID)
	if err != nil {
		s.logger.Error("cron execute error",
			slog.String("entry", e.Name),
			slog.String("workflow_id", e.WorkflowID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("cron fired",
		slog.String("entry", e.Name),
		slog.String("execution_id", execID.String()),
		slog.Time("at", now),
	)
}
