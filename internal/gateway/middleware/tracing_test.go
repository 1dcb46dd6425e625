package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap/zaptest"

	"github.com/repairradar/repairradar/internal/gateway/tracing"
)

func newSpanRecorder(t *testing.T) (*tracing.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tr, err := tracing.NewTracerWithProcessor(&tracing.Config{Enable: true, ServiceName: "test", SampleRate: 1},
		sdktrace.NewSimpleSpanProcessor(exporter), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exporter
}

func spanAttr(span tracetest.SpanStub, key attribute.Key) attribute.Value {
	for _, kv := range span.Attributes {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestTracingMiddlewareNamesSpanByRoute(t *testing.T) {
	tr, exporter := newSpanRecorder(t)
	labels := NewRouteLabels("/api/v1/jobs/:id")

	h := RequestIDMiddleware(TracingMiddleware(tr, labels)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/abc", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/jobs/:id", spans[0].Name)
	assert.Equal(t, int64(http.StatusNotFound), spanAttr(spans[0], semconv.HTTPStatusCodeKey).AsInt64())
	assert.NotEmpty(t, spanAttr(spans[0], "http.request_id").AsString())
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, spans[0].SpanContext.TraceID().String(), rec.Header().Get(TraceIDHeader))
}

func TestTracingMiddlewareServerErrorAndUnknownPath(t *testing.T) {
	tr, exporter := newSpanRecorder(t)

	h := TracingMiddleware(tr, NewRouteLabels("/api/v1/jobs"))(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/admin.php", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST "+OtherRoute, spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestTracingMiddlewareUnauthorizedEvent(t *testing.T) {
	tr, exporter := newSpanRecorder(t)

	h := TracingMiddleware(tr, NewRouteLabels("/api/v1/my-data"))(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/my-data", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "tenant session refused", spans[0].Events[0].Name)
}

func TestTracingMiddlewareDisabledPassesThrough(t *testing.T) {
	tr, err := tracing.NewTracer(&tracing.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	called := false
	h := TracingMiddleware(tr, nil)(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get(TraceIDHeader))
}
