package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Observability interface {
	Tracer() Tracer
	Logger() Logger
	Metrics() Metrics
}

type Metrics interface {
	Counter(name MetricKey) Counter
	Histogram(name MetricKey) Histogram
}

// Tracer is a thin wrapper to start spans.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
}

// Counter is a thin wrapper to add metrics.
type Counter interface {
	Add(delta float64, labels ...Label)
}

type Histogram interface {
	Observe(value float64, labels ...Label)
}

type Label struct{ Key, Value string }

func L(k, v string) Label { return Label{Key: k, Value: v} }

type Field struct {
	Key   string
	Value any
}

func F(k string, v any) Field { return Field{Key: k, Value: v} }

// Logger is a thin wrapper to log messages.
type Logger interface {
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type MetricKey string

// TracerOf returns the tracer of o, or a nop tracer when o is nil.
func TracerOf(o Observability) Tracer {
	if o == nil || o.Tracer() == nil {
		return NopTracer()
	}
	return o.Tracer()
}

// LoggerOf returns the logger of o, or a nop logger when o is nil.
func LoggerOf(o Observability) Logger {
	if o == nil || o.Logger() == nil {
		return NopLogger()
	}
	return o.Logger()
}

// MetricsOf returns the metrics of o, or nop metrics when o is nil.
func MetricsOf(o Observability) Metrics {
	if o == nil || o.Metrics() == nil {
		return NopMetrics()
	}
	return o.Metrics()
}
