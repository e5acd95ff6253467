package workerpresentation

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/cafeteria/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext injects a request-scoped logger for background/worker executions.
// Dynamic fields only: trace_id/span_id (if valid), event_id (generated if empty),
// plus caller-provided low-cardinality attributes (e.g. "event", "consumer").
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	traceID trace.TraceID,
	spanID trace.SpanID,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	fields := make([]observability.Field, 0, 4+len(attrs))

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))

	if traceID.IsValid() {
		fields = append(fields, observability.F("trace_id", traceID.String()))
	}
	if spanID.IsValid() {
		fields = append(fields, observability.F("span_id", spanID.String()))
	}

	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}

// Subscriber decorates every handler it registers so the handler runs with an event-scoped logger.
type Subscriber struct {
	inner    domoutbox.Subscriber
	consumer string
	log      observability.Logger
}

// NewSubscriber names the consuming component (kitchen, relay.kafka, ...) on every log line.
func NewSubscriber(inner domoutbox.Subscriber, consumer string, tel observability.Observability) *Subscriber {
	return &Subscriber{
		inner:    inner,
		consumer: consumer,
		log:      observability.Or(tel).Logger(),
	}
}

func (s *Subscriber) Subscribe(eventName string, h domoutbox.Handler) {
	s.inner.Subscribe(eventName, func(ctx context.Context, e domoutbox.Event) error {
		sc := trace.SpanContextFromContext(ctx)
		ctx = WithEventContext(ctx, logctx.FromOr(ctx, s.log), sc.TraceID(), sc.SpanID(), map[string]string{
			"event":    e.EventName(),
			"consumer": s.consumer,
		})
		return h(ctx, e)
	})
}
