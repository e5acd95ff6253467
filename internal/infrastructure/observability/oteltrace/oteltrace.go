// Package oteltrace binds the observability.Tracer port to the global otel provider that
// otelsdk.Setup installs. Use case, ledger and worker spans all start here.
package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultScope = "github.com/Zhima-Mochi/cafeteria"

type tracer struct{ t trace.Tracer }

// New returns a tracer for the instrumentation scope name at version. The provider is resolved
// lazily by otel, so spans are dropped until Setup runs and recorded afterwards.
func New(name, version string) observability.Tracer {
	if name == "" {
		name = defaultScope
	}
	var opts []trace.TracerOption
	if version != "" {
		opts = append(opts, trace.WithInstrumentationVersion(version))
	}
	return &tracer{t: otel.Tracer(name, opts...)}
}

// Start opens an internal span; server spans come from the HTTP middleware.
func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindInternal))
}
