// Package tracing installs an OpenTelemetry tracer provider for a run. The
// pipeline creates its spans through the global provider, so a disabled
// Service leaves every span a no-op.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"ixperf/internal/config"
	"ixperf/internal/logging"
)

const ServiceName = "ixperf"

// Service owns the tracer provider installed for a run
type Service struct {
	provider *sdktrace.TracerProvider
}

// New installs a global tracer provider exporting to cfg.Exporter. A
// disabled config returns a Service whose Shutdown does nothing.
func New(ctx context.Context, cfg config.TracingConfig, logger *logging.Logger) (*Service, error) {
	if !cfg.Enabled {
		return &Service{}, nil
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "otlp":
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithHeaders(cfg.OTLPHeaders),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "console", "":
		exporter = NewConsoleExporter(logger)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}

	ratio := cfg.SamplingRatio
	if ratio <= 0 {
		ratio = 1.0
	}
	return install(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	), nil
}

func install(opts ...sdktrace.TracerProviderOption) *Service {
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
		)),
	}, opts...)

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Service{provider: tp}
}

func (s *Service) Enabled() bool { return s.provider != nil }

// Shutdown flushes pending spans and stops the provider
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Shutdown(ctx)
}
