// Package conductor provides a workflow orchestration engine for Go.
// It executes directed graphs of steps, dispatches each step to an
// external action executor, persists durable execution state with
// optimistic-concurrency versioning, and supports pause/resume for
// human-in-the-loop steps, cooperative cancellation, and time-travel
// forking of past executions.
//
// Conductor is designed as a library, not a service. Import it,
// configure a store and an action executor, register workflow
// definitions, and start executions.
//
// # Quick Start
//
//	orc, err := conductor.New(
//	    conductor.WithStore(memory.New()),
//	    conductor.WithMaxConcurrentSteps(20),
//	)
//
// Then build an engine on top of it:
//
//	eng, err := engine.Build(orc, source, actions)
//	exec, err := eng.Execute(ctx, workflowID, input, engine.ExecuteOpts{})
//
// # Architecture
//
// Conductor follows a composable store pattern: the execution subsystem
// defines its own store interface and a single backend implements it.
// Two backends ship with the module: an in-memory store for development
// and testing, and a PostgreSQL store (the durable path) built on pgx.
//
// Every mutation of an execution record is an atomic read-modify-write
// that increments the record's version by exactly one. Concurrent
// writers — including other engine instances sharing the same store —
// coordinate through this version, never through locks.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package conductor
