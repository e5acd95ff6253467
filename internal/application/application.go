package application

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/cafeteria/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	SpanPrefix = "UC."

	outcomeSuccess      = "success"
	outcomeError        = "error"
	publishPeer         = "outbox"
	publishTimeout      = 300 * time.Millisecond
	statusPublishFailed = "EVENT_PUBLISH_FAILED"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// UseCaseFunc lets a plain service method stand in for a UseCase.
type UseCaseFunc[C any, R any] func(ctx context.Context, cmd C) (R, error)

func (f UseCaseFunc[C, R]) Execute(ctx context.Context, cmd C) (R, error) { return f(ctx, cmd) }

// Instruments holds the RED instruments shared by every use case of a service.
// Build it once per service; it is safe for concurrent use.
type Instruments struct {
	log    observability.Logger
	tracer observability.Tracer

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstruments(tel observability.Observability, service string) Instruments {
	tel = observability.Or(tel)
	m := tel.Metrics()
	return Instruments{
		log:          tel.Logger().With(observability.F("service", service)),
		tracer:       tel.Tracer(),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (in Instruments) Logger() observability.Logger { return in.log }

// Run is one use case execution between Begin and End.
type Run struct {
	ins     Instruments
	useCase string
	span    trace.Span
	log     observability.Logger
	start   time.Time
	outcome string
	status  string
	fields  []observability.Field
}

// Begin opens the span, binds a use-case logger onto ctx and starts the clock.
// Callers must defer End with the named error result.
func (in Instruments) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, SpanPrefix+spanName, attrs...)

	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	return ctx, &Run{
		ins:     in,
		useCase: useCase,
		span:    span,
		log:     logger,
		start:   time.Now(),
		outcome: outcomeSuccess,
		status:  "OK",
	}
}

func (r *Run) Logger() observability.Logger { return r.log }
func (r *Run) Span() trace.Span             { return r.span }

// Fail marks the run as failed with a machine-readable status code.
func (r *Run) Fail(status string) {
	r.outcome, r.status = outcomeError, status
}

// Note sets a non-error status, e.g. a soft failure the caller should still see in logs.
func (r *Run) Note(status string) {
	r.status = status
}

// With adds fields to the closing use_case_done line.
func (r *Run) With(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	if err != nil && r.outcome != outcomeError {
		r.outcome = outcomeError
		if r.status == "OK" {
			r.status = "FAILED"
		}
	}

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.status)
		} else {
			r.span.SetStatus(codes.Ok, r.status)
		}
		r.span.End()
	}

	if r.ins.reqCounter != nil {
		r.ins.reqCounter.Add(1,
			observability.L("use_case", r.useCase),
			observability.L("outcome", r.outcome),
		)
	}
	if r.ins.durHistogram != nil {
		r.ins.durHistogram.Observe(lat,
			observability.L("use_case", r.useCase),
		)
	}

	fields := append([]observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.log.Info("use_case_done", fields...)
}

// Publish hands e to pub with a short deadline and records it as an external call.
// A failed publish never fails the use case; it is noted on the run and returned for logging.
func (r *Run) Publish(ctx context.Context, pub domoutbox.Publisher, e domoutbox.Event) error {
	if pub == nil || e == nil {
		return nil
	}
	endpoint := e.EventName()

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	start := time.Now()
	outcome := outcomeSuccess

	err := pub.Publish(pubCtx, e)
	switch {
	case err != nil:
		outcome = outcomeError
	case pubCtx.Err() != nil:
		outcome = "canceled"
		err = pubCtx.Err()
	}

	if r.ins.extCounter != nil {
		r.ins.extCounter.Add(1,
			observability.L("peer", publishPeer),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
	}
	if r.ins.extHistogram != nil {
		r.ins.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", publishPeer),
			observability.L("endpoint", endpoint),
		)
	}

	if err != nil {
		r.Note(statusPublishFailed)
		if r.span != nil {
			r.span.RecordError(err)
		}
		r.log.Warn("event_publish_failed",
			observability.F("event", endpoint),
			observability.F("error", err.Error()),
		)
		return err
	}
	if r.span != nil {
		r.span.AddEvent(endpoint)
	}
	return nil
}
