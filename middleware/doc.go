// Package middleware provides composable middleware for step execution.
//
// A [Middleware] is a function that wraps a step handler. Middleware are
// composed into a chain using [Chain] and applied before each step executes.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs step ID, service, action, duration, and outcome
//   - [Recover] — catches panics in action handlers and converts them to errors
//   - [Timeout] — cancels the step context after the step's configured deadline
//   - [Tracing] — wraps execution in an OpenTelemetry span
//   - [Metrics] — records per-step duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, ex *execution.Execution, step *workflow.Step, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
