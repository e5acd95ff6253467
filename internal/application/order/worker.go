package order

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/application"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/cafeteria/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const workerService = "kitchen-worker"

// ProductLookup resolves catalog details for kitchen tickets.
type ProductLookup interface {
	Product(ctx context.Context, id string) (*catalog.Product, error)
}

// Ticket is what the kitchen sees for a paid order.
type Ticket struct {
	OrderID     string
	Lines       []TicketLine
	Preparation time.Duration
}

type TicketLine struct {
	ProductID string
	Name      string
	Quantity  int
	Prepared  bool
}

// Worker turns order.paid into kitchen tickets and, when enabled, starts preparation right away.
type Worker struct {
	subscriber domoutbox.Subscriber
	products   ProductLookup
	prepare    application.UseCase[string, *domorder.Order]
	tracer     observability.Tracer

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

// NewWorker builds a kitchen worker. A nil prepare leaves orders in payment_confirmed for an operator.
func NewWorker(
	subscriber domoutbox.Subscriber,
	products ProductLookup,
	prepare application.UseCase[string, *domorder.Order],
	tel observability.Observability,
) *Worker {
	tel = observability.Or(tel)
	return &Worker{
		subscriber:   subscriber,
		products:     products,
		prepare:      prepare,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

// StartPreparationUseCase adapts Service.StartPreparation to the worker's port.
func StartPreparationUseCase(s *Service) application.UseCase[string, *domorder.Order] {
	return application.UseCaseFunc[string, *domorder.Order](s.StartPreparation)
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domorder.PaidEvent{}.EventName(), w.handleOrderPaid)
}

func (w *Worker) handleOrderPaid(ctx context.Context, e domoutbox.Event) error {
	const useCase = "order.worker.order_paid"
	evt, ok := e.(domorder.PaidEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tracer.Start(ctx, application.SpanPrefix+"OrderPaid",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("order.id", evt.OrderID),
	)
	start := time.Now()
	outcome, status := "success", "TICKET_ISSUED"

	fields := []observability.Field{
		observability.F("use_case", useCase),
		observability.F("event", e.EventName()),
		observability.F("order_id", evt.OrderID),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx, logger := logctx.Enrich(ctx, w.log, fields...)

	defer func() {
		lat := time.Since(start).Seconds()
		w.observe(useCase, outcome, lat)

		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		)

		if outcome == "error" {
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	ticket := w.buildTicket(ctx, evt)
	logger.Info("kitchen_ticket",
		observability.F("lines", ticket.Lines),
		observability.F("preparation_seconds", ticket.Preparation.Seconds()),
	)
	span.SetAttributes(attribute.Int64("kitchen.preparation_ms", ticket.Preparation.Milliseconds()))

	if w.prepare == nil {
		return nil
	}
	if _, err := w.prepare.Execute(ctx, evt.OrderID); err != nil {
		outcome, status = "error", "START_PREPARATION_FAILED"
		span.RecordError(err)
		return fmt.Errorf("worker: start preparation: %w", err)
	}
	status = "PREPARATION_STARTED"
	return nil
}

// buildTicket estimates preparation as the longest single item, since stations work in parallel.
func (w *Worker) buildTicket(ctx context.Context, evt domorder.PaidEvent) Ticket {
	t := Ticket{OrderID: evt.OrderID, Lines: make([]TicketLine, 0, len(evt.Items))}
	for _, it := range evt.Items {
		line := TicketLine{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity}
		if w.products != nil {
			if p, err := w.products.Product(ctx, it.ProductID); err == nil && p.Food != nil && p.Food.RequiresPreparation {
				line.Prepared = true
				if p.Food.PrepTime > t.Preparation {
					t.Preparation = p.Food.PrepTime
				}
			}
		}
		t.Lines = append(t.Lines, line)
	}
	return t
}

func (w *Worker) count(useCase, outcome string) {
	if w.reqCounter != nil {
		w.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
	}
}

func (w *Worker) observe(useCase string, outcome string, latencySeconds float64) {
	w.count(useCase, outcome)
	if w.durHistogram != nil {
		w.durHistogram.Observe(latencySeconds,
			observability.L("use_case", useCase),
		)
	}
}
