package telemetry

import (
	"context"
	"slices"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupTracingWithoutEndpoint(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	shutdown, err := SetupTracing(context.Background(), TracingConfig{ServiceName: "checkout"})
	if err != nil {
		t.Fatalf("SetupTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if fields := otel.GetTextMapPropagator().Fields(); !slices.Contains(fields, "traceparent") {
		t.Fatalf("propagator fields = %v, want traceparent", fields)
	}
}

func TestNewTracerProviderSamplesEverything(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := NewTracerProvider(nil, rec)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()

	if got := len(rec.Ended()); got != 1 {
		t.Fatalf("recorded %d spans, want 1", got)
	}
}
