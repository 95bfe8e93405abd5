package client

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	dispatchKey ctxKey = iota + 1
)

// DispatchValues describes the dispatch task an outbound call belongs to.
// Custom transports installed with [WithTransport] can read them from the
// request context with [GetValues].
type DispatchValues struct {
	TraceID  string
	ClientID string
	Seq      int32
	Start    time.Time
}

// GetValues retrieves the DispatchValues from the given context.
func GetValues(ctx context.Context) *DispatchValues {
	v, ok := ctx.Value(dispatchKey).(*DispatchValues)
	if !ok {
		return &DispatchValues{
			TraceID: uuid.Nil.String(),
			Start:   time.Now(),
		}
	}

	return v
}

// GetTraceID retrieves the trace ID of the dispatch task running in ctx.
// We return an empty uuid if not set.
func GetTraceID(ctx context.Context) string {
	v, ok := ctx.Value(dispatchKey).(*DispatchValues)
	if !ok {
		return uuid.Nil.String()
	}

	return v.TraceID
}

func setValues(ctx context.Context, v *DispatchValues) context.Context {
	return context.WithValue(ctx, dispatchKey, v)
}

// startSpan opens the dispatch span and writes the trace context into the
// outbound headers.
func (c *Context) startSpan(ctx context.Context, seq int32, method string, header http.Header) (context.Context, trace.Span, *DispatchValues) {
	ctx, span := c.tracer.Start(ctx, "httpengine.dispatch", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.Int("httpengine.seq", int(seq)),
		attribute.String("http.request.method", method),
	)

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))

	traceID := span.SpanContext().TraceID().String()
	if !span.SpanContext().TraceID().IsValid() {
		traceID = uuid.New().String()
	}

	v := DispatchValues{
		TraceID:  traceID,
		ClientID: c.id.String(),
		Seq:      seq,
		Start:    time.Now(),
	}

	return setValues(ctx, &v), span, &v
}
