// Package telemetry bootstraps OpenTelemetry tracing for the state db and
// its tooling.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/colorfulnotion/zkstate/log"
)

// Tracing owns the tracer provider spans are exported through.
type Tracing struct {
	provider *sdktrace.TracerProvider
	disabled bool // if true, tracing is disabled (no-op)
}

// NewNoOpTracing returns a disabled Tracing whose tracers record nothing.
func NewNoOpTracing() *Tracing {
	return &Tracing{disabled: true}
}

// NewTracing exports spans over OTLP/HTTP to endpoint, given either as
// host:port (plain HTTP) or as a full URL. An empty endpoint disables tracing.
func NewTracing(ctx context.Context, endpoint, service string) (*Tracing, error) {
	if endpoint == "" {
		return NewNoOpTracing(), nil
	}
	var opt otlptracehttp.Option
	if strings.Contains(endpoint, "://") {
		opt = otlptracehttp.WithEndpointURL(endpoint)
	} else {
		opt = otlptracehttp.WithEndpoint(endpoint)
	}
	exp, err := otlptracehttp.New(ctx, opt, otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("otlp exporter for %s: %w", endpoint, err)
	}
	log.Info(log.CLIMonitoring, "tracing enabled", "endpoint", endpoint, "service", service)
	return NewTracingWithExporter(exp, service)
}

// NewTracingWithExporter batches spans into exp.
func NewTracingWithExporter(exp sdktrace.SpanExporter, service string) (*Tracing, error) {
	res := resource.NewSchemaless(attribute.String("service.name", service))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	return &Tracing{provider: tp}, nil
}

// Install makes this provider the global one.
func (t *Tracing) Install() {
	if t.disabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return
	}
	otel.SetTracerProvider(t.provider)
}

func (t *Tracing) Tracer(name string) trace.Tracer {
	if t.disabled {
		return noop.NewTracerProvider().Tracer(name)
	}
	return t.provider.Tracer(name)
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.disabled {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
