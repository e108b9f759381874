// Package store defines the composite persistence contract a full
// backend implements. Subsystem interfaces live with their consumers
// (execution.Store in package execution); this package ties them
// together with the lifecycle surface the Orchestrator holds.
package store

import (
	"github.com/xraph/conductor"
	"github.com/xraph/conductor/execution"
)

// Store is the full persistence contract: execution records plus
// lifecycle management. store/memory and store/postgres implement it.
type Store interface {
	conductor.Storer
	execution.Store
}
