// Package tracing wires the OpenTelemetry SDK to an OTLP collector.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Version is reported as the service.version resource attribute.
var Version = "dev"

const defaultEndpoint = "localhost:4317"

var newTraceExporter = func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
}

type settings struct {
	enabled  bool
	endpoint string
	ratio    float64
}

// settingsFromEnv reads TRACING_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT and
// TRACE_SAMPLE_RATIO. A ratio outside (0, 1] samples everything.
func settingsFromEnv() settings {
	s := settings{
		enabled:  !strings.EqualFold(strings.TrimSpace(os.Getenv("TRACING_ENABLED")), "false"),
		endpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ratio:    1,
	}
	if s.endpoint == "" {
		s.endpoint = defaultEndpoint
	}
	if r, err := strconv.ParseFloat(os.Getenv("TRACE_SAMPLE_RATIO"), 64); err == nil && r > 0 && r <= 1 {
		s.ratio = r
	}
	return s
}

// InitTracer installs a global tracer provider for service. When tracing
// is disabled the provider has no exporter and spans go nowhere.
func InitTracer(ctx context.Context, service string) (*sdktrace.TracerProvider, trace.Tracer, error) {
	if service == "" {
		service = "cryptothreads"
	}
	s := settingsFromEnv()

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.ratio))),
	}
	if s.enabled {
		exporter, err := newTraceExporter(ctx, s.endpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("otlp exporter %s: %w", s.endpoint, err)
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(Version),
		))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, tp.Tracer(service), nil
}
