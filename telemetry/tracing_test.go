package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoOpTracing(t *testing.T) {
	tr, err := NewTracing(context.Background(), "", "zkstate")
	require.NoError(t, err)
	_, span := tr.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestExporterReceivesSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tr, err := NewTracingWithExporter(exp, "zkstate-test")
	require.NoError(t, err)

	ctx := context.Background()
	defer tr.Shutdown(ctx)
	_, span := tr.Tracer("test").Start(ctx, "consolidate")
	span.End()
	// the in-memory exporter drops its spans on shutdown
	require.NoError(t, tr.provider.ForceFlush(ctx))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "consolidate", spans[0].Name)
	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "zkstate-test", service)
}

func TestOTLPExporterConstruct(t *testing.T) {
	tr, err := NewTracing(context.Background(), "localhost:4318", "zkstate")
	require.NoError(t, err)
	assert.False(t, tr.disabled)
	tr.Install()
	defer NewNoOpTracing().Install()
}
