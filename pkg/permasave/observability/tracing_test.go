package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest creates a test tracer provider with an in-memory span recorder.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	// Update the package-level tracer
	tracer = otel.Tracer("permasave")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func TestStartOperationSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	spans := NewSpanManager()
	ctx := context.Background()

	_, span := spans.StartOperationSpan(ctx, "save", "0xabc", "demo")
	require.NotNil(t, span)
	spans.EndSpanWithError(span, nil)

	recorded := exporter.GetSpans()
	require.Len(t, recorded, 1)
	assert.Equal(t, "permasave.save", recorded[0].Name)
	assert.Equal(t, codes.Ok, recorded[0].Status.Code)

	attrs := recorded[0].Attributes
	assert.Contains(t, attrs, attribute.String("checkpoint.owner", "0xabc"))
	assert.Contains(t, attrs, attribute.String("checkpoint.application", "demo"))
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	spans := NewSpanManager()
	_, span := spans.StartOperationSpan(context.Background(), "load", "0xabc", "demo")
	spans.EndSpanWithError(span, errors.New("fetch failed"))

	recorded := exporter.GetSpans()
	require.Len(t, recorded, 1)
	assert.Equal(t, codes.Error, recorded[0].Status.Code)
	require.Len(t, recorded[0].Events, 1)
	assert.Equal(t, "exception", recorded[0].Events[0].Name)
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	spans := NewSpanManager()
	ctx, span := spans.StartOperationSpan(context.Background(), "list", "0xabc", "demo")
	spans.AddSpanEvent(ctx, "object skipped", attribute.String("content_id", "bad"))
	spans.EndSpanWithError(span, nil)

	recorded := exporter.GetSpans()
	require.Len(t, recorded, 1)
	require.Len(t, recorded[0].Events, 1)
	assert.Equal(t, "object skipped", recorded[0].Events[0].Name)
}
