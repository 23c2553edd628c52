package support

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

func ConsoleExporter() (trace.SpanExporter, error) {
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}

func OTLPExporter(ctx context.Context, endpoint string) (trace.SpanExporter, error) {
	return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
}

// TracerProvider builds the provider for the configured exporter and installs it globally.
// With the "none" exporter spans are created but never exported. Callers shut the
// provider down on exit to flush pending spans.
func TracerProvider(ctx context.Context, cfg TelemetryConfig, service string) (*trace.TracerProvider, error) {
	options := []trace.TracerProviderOption{
		trace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
	}

	switch cfg.Exporter {
	case "", "none":
	case "console":
		exporter, err := ConsoleExporter()
		if err != nil {
			return nil, fmt.Errorf("creating console exporter: %w", err)
		}
		options = append(options, trace.WithBatcher(exporter))
	case "otlp":
		exporter, err := OTLPExporter(ctx, cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
		options = append(options, trace.WithBatcher(exporter))
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q", cfg.Exporter)
	}

	provider := trace.NewTracerProvider(options...)
	otel.SetTracerProvider(provider)

	return provider, nil
}
