package conductor

import "time"

// Config holds configuration for an Orchestrator.
type Config struct {
	// MaxConcurrentSteps bounds how many steps may be actively dispatched
	// at once across all executions on this instance. This is the primary
	// backpressure mechanism.
	MaxConcurrentSteps int

	// DefaultStepTimeout applies to steps that declare no timeout of
	// their own. Zero means no limit.
	DefaultStepTimeout time.Duration

	// CancelGracePeriod is how long Cancel waits for an in-flight
	// execution to observably stop before giving up on the join.
	CancelGracePeriod time.Duration

	// ConflictRetries is the maximum number of times a versioned write
	// is retried after an optimistic-concurrency conflict.
	ConflictRetries int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSteps: 10,
		DefaultStepTimeout: 5 * time.Minute,
		CancelGracePeriod:  10 * time.Second,
		ConflictRetries:    5,
		ShutdownTimeout:    30 * time.Second,
	}
}
