package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tr, err := NewTracerWithProcessor(&Config{Enable: true, ServiceName: "test", SampleRate: 1}, sdktrace.NewSimpleSpanProcessor(exporter), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exporter
}

func TestNewTracer(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "disabled", config: &Config{}},
		{name: "jaeger", config: &Config{Enable: true, ServiceName: "test", Endpoint: "http://localhost:14268/api/traces", Exporter: "jaeger", SampleRate: 1, BatchTimeout: 1, MaxQueueSize: 16}},
		{name: "zipkin", config: &Config{Enable: true, ServiceName: "test", Endpoint: "http://localhost:9411/api/v2/spans", Exporter: "zipkin", SampleRate: 0.5, BatchTimeout: 1, MaxQueueSize: 16}},
		{name: "invalid exporter", config: &Config{Enable: true, Exporter: "invalid"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTracer(tt.config, zaptest.NewLogger(t))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.Enable, tr.IsEnabled())
			assert.NoError(t, tr.Shutdown(context.Background()))
		})
	}
}

func TestDisabledTracer(t *testing.T) {
	tr, err := NewTracer(&Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, span := tr.Start(context.Background(), "noop")
	defer span.End()

	tr.SetAttributes(ctx, attribute.String("k", "v"))
	tr.RecordError(ctx, errors.New("ignored"))
	assert.Empty(t, tr.GetTraceID(ctx))
	assert.Empty(t, tr.GetSpanID(ctx))
	assert.Equal(t, ctx, tr.ExtractHTTPHeaders(ctx, http.Header{}))
}

func TestTracerRecordsSpans(t *testing.T) {
	tr, exporter := newRecordingTracer(t)

	ctx, span := tr.Start(context.Background(), "GET /api/v1/jobs")
	tr.SetAttributes(ctx, attribute.String("user.id", "user-1"))
	tr.RecordError(ctx, errors.New("boom"))
	assert.Len(t, tr.GetTraceID(ctx), 32)
	assert.Len(t, tr.GetSpanID(ctx), 16)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/jobs", spans[0].Name)
	assert.Len(t, spans[0].Events, 1)
}

func TestExtractHTTPHeaders(t *testing.T) {
	tr, _ := newRecordingTracer(t)

	header := http.Header{}
	header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	ctx := tr.ExtractHTTPHeaders(context.Background(), header)
	ctx, span := tr.Start(ctx, "child")
	defer span.End()

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", tr.GetTraceID(ctx))
}
