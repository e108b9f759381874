// Package engine wires all Conductor subsystems together. It creates
// the hook registry, notification broker, execution state manager, task
// registry, and middleware chain, and provides the orchestration API:
// Execute, Resume, Cancel, Fork, and the read operations.
//
// This package exists to break the import cycle: the root conductor
// package defines Entity and the error taxonomy (imported by execution,
// workflow, etc.) and so cannot import those packages back. The engine
// package sits above all subsystem packages and below the application
// layer.
//
// # Execution model
//
// Execute creates a durable execution record and schedules its step
// graph on a background goroutine, returning immediately. Steps are
// dispatched in readiness waves: a step becomes ready when every
// predecessor has settled, and ready steps of a wave run concurrently
// under the engine-wide semaphore. Each dispatch is an atomic,
// version-bumping state mutation, so execution state can be observed
// and resumed at any step boundary — including by another engine
// instance sharing the store.
package engine
