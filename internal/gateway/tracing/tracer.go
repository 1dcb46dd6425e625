package tracing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config for tracing
type Config struct {
	Enable       bool    `json:",default=false"`
	ServiceName  string  `json:",default=repairradar-gateway"`
	Endpoint     string  `json:",default=http://localhost:14268/api/traces"`
	Exporter     string  `json:",default=jaeger,options=jaeger|zipkin"`
	SampleRate   float64 `json:",default=1.0"` // 0.0-1.0
	Environment  string  `json:",default=development"`
	BatchTimeout int     `json:",default=5"` // seconds
	MaxQueueSize int     `json:",default=2048"`
}

// Tracer owns the process tracer provider
type Tracer struct {
	config   *Config
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewTracer builds the exporter named by cfg and installs the provider
// globally, so spans started through otel.Tracer reach it too
func NewTracer(cfg *Config, logger *zap.Logger) (*Tracer, error) {
	if !cfg.Enable {
		logger.Info("tracing is disabled")
		return &Tracer{config: cfg, logger: logger}, nil
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "jaeger":
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
		if err != nil {
			return nil, fmt.Errorf("failed to create jaeger exporter: %w", err)
		}
	case "zipkin":
		exporter, err = zipkin.New(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create zipkin exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}

	batcher := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithBatchTimeout(time.Duration(cfg.BatchTimeout)*time.Second),
		sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
	)

	t, err := NewTracerWithProcessor(cfg, batcher, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("tracing initialized",
		zap.String("service", cfg.ServiceName),
		zap.String("exporter", cfg.Exporter),
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return t, nil
}

// NewTracerWithProcessor installs a provider exporting through processor.
// NewTracer uses it with a batching exporter; tests pass an in-memory one.
func NewTracerWithProcessor(cfg *Config, processor sdktrace.SpanProcessor, logger *zap.Logger) (*Tracer, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
		sdktrace.WithSpanProcessor(processor),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		config:   cfg,
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		logger:   logger,
	}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes pending spans
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}

	t.logger.Info("shutting down tracer")
	return t.provider.Shutdown(ctx)
}

// Start starts a span. A disabled tracer returns the span already in ctx.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !t.IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, spanName, opts...)
}

// IsEnabled reports whether spans are recorded
func (t *Tracer) IsEnabled() bool {
	return t.config.Enable && t.tracer != nil
}

// SetAttributes sets attributes on the span in ctx
func (t *Tracer) SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if !t.IsEnabled() {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// RecordError records err on the span in ctx
func (t *Tracer) RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if !t.IsEnabled() || err == nil {
		return
	}
	trace.SpanFromContext(ctx).RecordError(err, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace id in ctx, or ""
func (t *Tracer) GetTraceID(ctx context.Context) string {
	if !t.IsEnabled() {
		return ""
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// GetSpanID returns the span id in ctx, or ""
func (t *Tracer) GetSpanID(ctx context.Context) string {
	if !t.IsEnabled() {
		return ""
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}

// ExtractHTTPHeaders continues a trace propagated by the caller
func (t *Tracer) ExtractHTTPHeaders(ctx context.Context, header http.Header) context.Context {
	if !t.IsEnabled() {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}
