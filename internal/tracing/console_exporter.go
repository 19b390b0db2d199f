package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"ixperf/internal/logging"
)

// ConsoleExporter writes finished spans to the run's logger
type ConsoleExporter struct {
	logger *logging.Logger
}

var _ sdktrace.SpanExporter = (*ConsoleExporter)(nil)

func NewConsoleExporter(logger *logging.Logger) *ConsoleExporter {
	return &ConsoleExporter{logger: logger}
}

func (ce *ConsoleExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		args := []interface{}{
			"trace_id", span.SpanContext().TraceID().String(),
			"span_id", span.SpanContext().SpanID().String(),
			"name", span.Name(),
			"duration", span.EndTime().Sub(span.StartTime()),
			"status", span.Status().Code.String(),
		}
		if span.Parent().IsValid() {
			args = append(args, "parent_id", span.Parent().SpanID().String())
		}
		if desc := span.Status().Description; desc != "" {
			args = append(args, "status_description", desc)
		}
		args = append(args, "attributes", attributesToMap(span.Attributes()))
		ce.logger.Info("Span finished", args...)
	}
	return nil
}

func (ce *ConsoleExporter) Shutdown(ctx context.Context) error {
	return nil
}

func attributesToMap(attrs []attribute.KeyValue) map[string]interface{} {
	result := make(map[string]interface{}, len(attrs))
	for _, attr := range attrs {
		result[string(attr.Key)] = attr.Value.AsInterface()
	}
	return result
}
