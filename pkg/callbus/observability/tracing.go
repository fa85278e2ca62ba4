package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("callbus")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartEmitSpan starts a span covering one Emit call.
	StartEmitSpan(ctx context.Context, eventName, eventID, namespace string) (context.Context, trace.Span)

	// StartCallbackSpan starts a span for one callback invocation.
	// It should be a child of the emit span.
	StartCallbackSpan(ctx context.Context, subID string, async bool) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before creating the bus:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartEmitSpan(ctx context.Context, eventName, eventID, namespace string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "callbus.emit",
		trace.WithAttributes(
			attribute.String("event.name", eventName),
			attribute.String("event.id", eventID),
			attribute.String("event.namespace", namespace),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartCallbackSpan(ctx context.Context, subID string, async bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "callbus.callback",
		trace.WithAttributes(
			attribute.String("subscription.id", subID),
			attribute.Bool("callback.async", async),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
