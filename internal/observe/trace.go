package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the vocalis tracer.
const tracerName = "github.com/MrWong99/vocalis"

type turnIDKey struct{}

// Tracer returns the package-level [trace.Tracer]. It uses the globally
// registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// WithTurnID returns a context carrying the dialogue turn identifier.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, id)
}

// TurnID returns the dialogue turn identifier stored in ctx, or "".
func TurnID(ctx context.Context) string {
	id, _ := ctx.Value(turnIDKey{}).(string)
	return id
}

// CorrelationID returns the turn ID when set, otherwise the trace ID of the
// active span. Returns the empty string when neither exists.
func CorrelationID(ctx context.Context) string {
	if id := TurnID(ctx); id != "" {
		return id
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with the turn ID and the
// trace_id/span_id of the OTel span context in ctx. Without either, the
// default slog logger is returned unchanged.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := TurnID(ctx); id != "" {
		l = l.With(slog.String("turn_id", id))
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
