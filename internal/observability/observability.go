// Package observability holds the vendor-neutral ports the cafeteria services log, count and trace
// through. Use cases, the stock ledger, workers and the HTTP adapter depend only on these types;
// zap, prometheus and otel are bound in infrastructure/observability.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Observability bundles the three signals handed to every service constructor.
// A nil value is valid; Or swaps it for no-op implementations.
type Observability interface {
	Tracer() Tracer
	Logger() Logger
	Metrics() Metrics
}

// Metrics resolves pre-registered instruments by key (see metrics.go). Unknown keys yield nil,
// so callers guard with a nil check.
type Metrics interface {
	Counter(name MetricKey) Counter
	Histogram(name MetricKey) Histogram
}

// Tracer starts spans such as "usecase.ProcessPayment" or "GET /orders/{id}".
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
}

// Counter backs the *_total series, e.g. stock_operations_total{operation,outcome}.
type Counter interface {
	Add(delta float64, labels ...Label)
	Bind(labels ...Label) BoundCounter
}

type BoundCounter interface {
	Add(delta float64)
}

// Histogram backs the *_duration_seconds series.
type Histogram interface {
	Observe(value float64, labels ...Label)
	Bind(labels ...Label) BoundHistogram
}

type BoundHistogram interface {
	Observe(value float64)
}

// Label is one metric label pair. Values must stay low cardinality: use case names, outcomes,
// route patterns. Never order or product ids.
type Label struct{ Key, Value string }

func L(k, v string) Label { return Label{Key: k, Value: v} }

// Field is one structured log attribute; ids and amounts belong here rather than in labels.
type Field struct {
	Key   string
	Value any
}

func F(k string, v any) Field { return Field{Key: k, Value: v} }

// Logger writes snake_case events (use_case_done, stock_operation_applied, http_access) with fields.
type Logger interface {
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type MetricKey string
