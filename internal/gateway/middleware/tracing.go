package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/repairradar/repairradar/internal/gateway/tracing"
)

// TraceIDHeader carries the trace id back to the caller
const TraceIDHeader = "X-Trace-ID"

// TracingMiddleware opens a server span per request, continuing any trace
// propagated by the caller. A disabled tracer adds nothing to the chain.
func TracingMiddleware(tracer *tracing.Tracer, routes *RouteLabels) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if !tracer.IsEnabled() {
			return next
		}

		return func(w http.ResponseWriter, r *http.Request) {
			route := routes.Label(r.URL.Path)
			ctx := tracer.ExtractHTTPHeaders(r.Context(), r.Header)
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r, route)...))
			defer span.End()

			if id := tracer.GetTraceID(ctx); id != "" {
				w.Header().Set(TraceIDHeader, id)
			}

			sw := newStatusWriter(w)
			next(sw, r.WithContext(ctx))
			endSpan(span, sw)
		}
	}
}

func requestAttributes(r *http.Request, route string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.HTTPMethod(r.Method),
		semconv.HTTPRoute(route),
		semconv.NetHostName(r.Host),
	}
	if id := RequestIDFromContext(r.Context()); id != "" {
		attrs = append(attrs, attribute.String("http.request_id", id))
	}
	return attrs
}

// endSpan records the outcome. Client errors, including the 401 of an
// expired tenant session, leave the span unset.
func endSpan(span trace.Span, sw *statusWriter) {
	span.SetAttributes(
		semconv.HTTPStatusCode(sw.status),
		attribute.Int64("http.response_size", sw.written),
	)
	if sw.status == http.StatusUnauthorized {
		span.AddEvent("tenant session refused")
	}
	if sw.status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(sw.status))
	}
}
