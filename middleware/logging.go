package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/workflow"
)

// Logging returns middleware that logs step start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, ex *execution.Execution, step *workflow.Step, next Handler) error {
		logger.Info("step started",
			slog.String("execution_id", ex.ID.String()),
			slog.String("step_id", step.ID),
			slog.String("service", step.Service),
			slog.String("action", step.Action),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step failed",
				slog.String("execution_id", ex.ID.String()),
				slog.String("step_id", step.ID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step completed",
				slog.String("execution_id", ex.ID.String()),
				slog.String("step_id", step.ID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
