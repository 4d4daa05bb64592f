package metrics

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tigerroll/ddbimport/pkg/batch/core/config"
	metrics "github.com/tigerroll/ddbimport/pkg/batch/core/metrics"
	logger "github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const instrumentationName = "github.com/tigerroll/ddbimport"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer backed by tp.
func NewOpenTelemetryTracer(tp trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tp.Tracer(instrumentationName)}
}

// StartRunSpan starts a span for one import run.
func (t *OpenTelemetryTracer) StartRunSpan(ctx context.Context, table, file string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "ddbimport.run", trace.WithAttributes(
		attribute.String("ddbimport.table", table),
		attribute.String("ddbimport.file", file),
	))
	return ctx, func() { span.End() }
}

// StartChunkSpan starts a span for one chunk.
func (t *OpenTelemetryTracer) StartChunkSpan(ctx context.Context, table string, sequence int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "ddbimport.chunk", trace.WithAttributes(
		attribute.String("ddbimport.table", table),
		attribute.Int("ddbimport.chunk.sequence", sequence),
	))
	return ctx, func() { span.End() }
}

// StartBatchSpan starts a span for one BatchWriteItem attempt.
func (t *OpenTelemetryTracer) StartBatchSpan(ctx context.Context, table string, items, attempt int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "ddbimport.batch_write", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("ddbimport.table", table),
		attribute.Int("ddbimport.batch.items", items),
		attribute.Int("ddbimport.batch.attempt", attempt),
	))
	return ctx, func() { span.End() }
}

// RecordError records an error in the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("ddbimport.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)

// NewTracerProvider builds a tracer provider for cfg.Exporter and installs it
// globally so the AWS SDK middleware reports into the same traces. The
// returned function flushes and shuts the provider down.
func NewTracerProvider(ctx context.Context, cfg config.TracingConfig) (trace.TracerProvider, func(context.Context) error, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch strings.ToLower(cfg.Exporter) {
	case "", "none":
		tp := noop.NewTracerProvider()
		return tp, func(context.Context) error { return nil }, nil
	case "otlp-http":
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case "otlp-grpc":
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s trace exporter: %w", cfg.Exporter, err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ddbimport"
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)
	logger.Infof("Tracing: exporting spans via %s to %s.", cfg.Exporter, cfg.Endpoint)
	return tp, tp.Shutdown, nil
}
