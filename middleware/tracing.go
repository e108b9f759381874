package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/conductor/execution"
	"github.com/xraph/conductor/workflow"
)

// tracerName is the instrumentation scope name for conductor tracing.
const tracerName = "github.com/xraph/conductor"

// Tracing returns middleware that wraps step execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: conductor.execution.id, conductor.workflow.id,
// conductor.workspace.id, conductor.step.id, conductor.step.service,
// conductor.step.action. On error, the span status is set to codes.Error
// with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, ex *execution.Execution, step *workflow.Step, next Handler) error {
		ctx, span := tracer.Start(ctx, "conductor.step.execute",
			trace.WithAttributes(
				attribute.String("conductor.execution.id", ex.ID.String()),
				attribute.String("conductor.workflow.id", ex.WorkflowID.String()),
				attribute.String("conductor.workspace.id", ex.WorkspaceID),
				attribute.String("conductor.step.id", step.ID),
				attribute.String("conductor.step.service", step.Service),
				attribute.String("conductor.step.action", step.Action),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
