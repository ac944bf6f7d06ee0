package transport

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roomtalk/roomtalk/internal/message"
)

// TracingConfig holds configuration for OpenTelemetry tracing of transport
// operations.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	ZipkinURL   string
}

// DefaultTracingConfig returns a default tracing configuration. Tracing is
// disabled unless explicitly turned on.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:     false,
		ServiceName: "roomtalk",
		ZipkinURL:   "http://localhost:9411/api/v2/spans",
	}
}

// LoadTracingConfigFromEnv loads tracing configuration from environment
// variables.
func LoadTracingConfigFromEnv() TracingConfig {
	config := DefaultTracingConfig()

	if os.Getenv("RTC_TRACING_ENABLED") == "true" {
		config.Enabled = true
	}
	if serviceName := os.Getenv("RTC_TRACING_SERVICE_NAME"); serviceName != "" {
		config.ServiceName = serviceName
	}
	if zipkinURL := os.Getenv("RTC_TRACING_ZIPKIN_URL"); zipkinURL != "" {
		config.ZipkinURL = zipkinURL
	}

	return config
}

// SetupOTel initializes OpenTelemetry with a Zipkin exporter for transport
// observability. If config.Enabled is false, it returns a no-op tracer.
func SetupOTel(ctx context.Context, config TracingConfig) (trace.Tracer, func(), error) {
	if !config.Enabled {
		return noop.NewTracerProvider().Tracer("transport"), func() {}, nil
	}

	exporter, err := zipkin.New(config.ZipkinURL)
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	shutdown := func() {
		_ = tp.Shutdown(context.Background())
	}
	return tp.Tracer("transport"), shutdown, nil
}

// TracedTransport wraps a Transport so publishes carry OpenTelemetry spans.
type TracedTransport struct {
	Transport
	tracer trace.Tracer
}

// WithTracing decorates the transport. With a no-op tracer the overhead is
// negligible, so callers wrap unconditionally.
func WithTracing(t Transport, tracer trace.Tracer) *TracedTransport {
	return &TracedTransport{Transport: t, tracer: tracer}
}

// Publish wraps the publish operation with a span.
func (t *TracedTransport) Publish(ctx context.Context, rec message.Record) error {
	spanCtx, span := t.tracer.Start(ctx, "transport.publish",
		trace.WithAttributes(
			attribute.String("messaging.operation", "publish"),
			attribute.String("messaging.message_id", rec.ID),
			attribute.String("room.code", rec.RoomCode),
			attribute.Int("messaging.message_payload_size_bytes", len(rec.Content)),
		),
	)
	defer span.End()

	err := t.Transport.Publish(spanCtx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
