package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/application"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	domoutbox "github.com/Zhima-Mochi/cafeteria/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const workerService = "inventory_worker"

// RestockInput asks for Quantity more units of ProductID.
type RestockInput struct {
	ProductID string
	Quantity  int
}

// Worker reacts to catalog.stock_low: it raises an alert and, when configured, tops the product up.
type Worker struct {
	subscriber domoutbox.Subscriber
	restock    application.UseCase[RestockInput, *catalog.Product]
	restockQty int
	tracer     observability.Tracer

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

// NewWorker builds the worker. restockQty <= 0 disables automatic restocking.
func NewWorker(
	subscriber domoutbox.Subscriber,
	restock application.UseCase[RestockInput, *catalog.Product],
	restockQty int,
	tel observability.Observability,
) *Worker {
	tel = observability.Or(tel)
	return &Worker{
		subscriber:   subscriber,
		restock:      restock,
		restockQty:   restockQty,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", workerService)),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

// RestockUseCase adapts Ledger.Restock to the worker's use case port.
func RestockUseCase(l *Ledger) application.UseCase[RestockInput, *catalog.Product] {
	return application.UseCaseFunc[RestockInput, *catalog.Product](func(ctx context.Context, in RestockInput) (*catalog.Product, error) {
		return l.Restock(ctx, in.ProductID, in.Quantity)
	})
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(catalog.StockLowEvent{}.EventName(), w.handleStockLow)
}

func (w *Worker) handleStockLow(ctx context.Context, e domoutbox.Event) error {
	const useCase = "inventory.worker.stock_low"
	evt, ok := e.(catalog.StockLowEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tracer.Start(ctx, application.SpanPrefix+"StockLow",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
		attribute.String("product.id", evt.ProductID),
	)
	start := time.Now()
	outcome, status := "success", "ALERTED"

	fields := []observability.Field{
		observability.F("use_case", useCase),
		observability.F("event", e.EventName()),
		observability.F("product_id", evt.ProductID),
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

	logger.Warn("stock_low_alert",
		observability.F("product_name", evt.Name),
		observability.F("stock", evt.Stock),
		observability.F("threshold", evt.Threshold),
	)

	if w.restock == nil || w.restockQty <= 0 {
		return nil
	}

	p, err := w.restock.Execute(ctx, RestockInput{ProductID: evt.ProductID, Quantity: w.restockQty})
	if err != nil {
		outcome, status = "error", "RESTOCK_FAILED"
		span.RecordError(err)
		return fmt.Errorf("worker: restock %s: %w", evt.ProductID, err)
	}
	status = "RESTOCKED"
	span.SetAttributes(attribute.Int("product.stock", p.Stock()))
	return nil
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
