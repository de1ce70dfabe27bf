package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this library's spans to whatever tracer provider the
// embedding process installs. The control plane has no network surface of
// its own, so it only emits spans through the global provider; without one
// installed every span is a no-op.
const tracerName = "github.com/haasonsaas/chatloop"

// Tracer returns the control plane's tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan begins a span with stream identification attached. Callers must
// end the returned span.
func StartSpan(ctx context.Context, name, streamID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(
		attribute.String("chatloop.stream_id", streamID),
	))
}
