package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/workflow"
)

// Timeout returns middleware that enforces a per-step execution deadline.
// Each step runs under a context.WithTimeout using the step's configured
// Timeout, falling back to fallback when the step does not declare one.
// When the deadline is exceeded the handler's context error is converted
// to a [conductor.StepTimeoutError] carrying the step ID and the limit.
func Timeout(logger *slog.Logger, fallback time.Duration) Middleware {
	return func(ctx context.Context, ex *execution.Execution, step *workflow.Step, next Handler) error {
		limit := step.Timeout
		if limit <= 0 {
			limit = fallback
		}
		if limit <= 0 {
			return next(ctx)
		}

		logger.Debug("step timeout set",
			slog.String("execution_id", ex.ID.String()),
			slog.String("step_id", step.ID),
			slog.Duration("timeout", limit),
		)

		ctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		err := next(ctx)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return &conductor.StepTimeoutError{StepID: step.ID, Timeout: limit}
		}
		return err
	}
}
