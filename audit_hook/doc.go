// Package audithook is a Conductor extension that bridges execution
// lifecycle events to an immutable audit trail backend.
//
// Every execution and step lifecycle hook emits a structured audit
// event through the [Recorder] interface. The extension assigns
// appropriate severity levels (info for normal operations, warning for
// cancellations and step failures, critical for terminal execution
// failures) and rich metadata (workflow id, workspace, attempt counts,
// elapsed time, errors).
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionExecutionFailed,
//	        audithook.ActionExecutionCancelled,
//	        audithook.ActionStepFailed,
//	    ),
//	)
//
// Recorder failures are logged and never propagate into the engine's
// scheduling path.
package audithook
