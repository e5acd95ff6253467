// Package order is the order-inventory orchestrator. It keeps order aggregates and the stock
// ledger in step: every compound operation either fully applies or leaves both untouched.
//
// Locking: a per-order lock is held for the whole compound operation. Ledger calls take their
// own per-product locks internally and release them before returning, so product locks are always
// innermost. Releases keep the product locks across the order store write so no other order can
// claim the freed units before the order is stored.
package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/cafeteria/internal/application"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	domain "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/cafeteria/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/pkg/keylock"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService = "order-service"

	useCaseCreate      = "order.create"
	useCaseAddItem     = "order.add_item"
	useCaseRemoveItem  = "order.remove_item"
	useCasePay         = "order.process_payment"
	useCaseCancel      = "order.cancel"
	useCasePrepare     = "order.start_preparation"
	useCaseReady       = "order.mark_ready"
	useCaseComplete    = "order.complete"
	compensationFailed = "compensation_failed"
)

type Service struct {
	orders    domain.Repository
	ledger    StockLedger
	ids       IDGenerator
	publisher domoutbox.Publisher
	locks     *keylock.Locker
	ins       application.Instruments
}

func NewService(
	orders domain.Repository,
	ledger StockLedger,
	ids IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Service {
	if publisher == nil {
		publisher = domoutbox.NopPublisher{}
	}
	return &Service{
		orders:    orders,
		ledger:    ledger,
		ids:       ids,
		publisher: publisher,
		locks:     keylock.New(),
		ins:       application.NewInstruments(tel, orderService),
	}
}

type AddItemInput struct {
	OrderID   string
	ProductID string
	Quantity  int
}

type PaymentInput struct {
	OrderID string
	Method  domain.PaymentMethod
}

func (s *Service) CreateOrder(ctx context.Context, customerID string) (_ *domain.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseCreate, "CreateOrder", attribute.String("order.customer_id", customerID))
	defer func() { run.End(err) }()

	o, err := domain.New(s.ids.NewID(), customerID)
	if err != nil {
		run.Fail("VALIDATION_FAILED")
		return nil, err
	}
	if err := s.orders.Save(ctx, o); err != nil {
		run.Fail("REPO_SAVE_FAILED")
		return nil, fmt.Errorf("order: save: %w", err)
	}
	run.With(observability.F("order_id", o.ID))
	run.Span().SetAttributes(attribute.String("order.id", o.ID))
	_ = run.Publish(ctx, s.publisher, domain.NewStatusChangedEvent(o, ""))
	return o, nil
}

// AddItemToOrder reserves stock first and only then mutates the order.
// If the order side fails the reservation is released before returning.
func (s *Service) AddItemToOrder(ctx context.Context, in AddItemInput) (_ *domain.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseAddItem, "AddItemToOrder",
		attribute.String("order.id", in.OrderID),
		attribute.String("product.id", in.ProductID),
		attribute.Int("quantity", in.Quantity),
	)
	defer func() { run.End(err) }()
	run.With(
		observability.F("order_id", in.OrderID),
		observability.F("product_id", in.ProductID),
		observability.F("quantity", in.Quantity),
	)

	if in.Quantity <= 0 {
		run.Fail("QUANTITY_INVALID")
		return nil, errs.Validation("quantity must be greater than zero")
	}

	unlock := s.locks.Lock(in.OrderID)
	defer unlock()

	o, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		run.Fail(statusFor(err, "ORDER_LOAD_FAILED"))
		return nil, err
	}
	product, err := s.ledger.Product(ctx, in.ProductID)
	if err != nil {
		run.Fail(statusFor(err, "PRODUCT_LOAD_FAILED"))
		return nil, err
	}
	if !o.IsPending() {
		run.Fail("INVALID_STATE")
		return nil, &errs.InvalidStateError{Entity: "order", ID: o.ID, Current: string(o.Status), Required: string(domain.StatusPending)}
	}

	if err := s.ledger.Reserve(ctx, in.ProductID, in.Quantity); err != nil {
		run.Fail(statusFor(err, "RESERVE_FAILED"))
		return nil, err
	}

	if err := o.AddItem(product, in.Quantity); err != nil {
		run.Fail(statusFor(err, "ADD_ITEM_FAILED"))
		s.compensate(ctx, run, "release", in.ProductID, in.Quantity, s.ledger.Release)
		return nil, err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		run.Fail("REPO_UPDATE_FAILED")
		s.compensate(ctx, run, "release", in.ProductID, in.Quantity, s.ledger.Release)
		return nil, fmt.Errorf("order: update: %w", err)
	}
	return o, nil
}

// RemoveItemFromOrder releases the line's reservation and drops the line.
// Removing a product the order does not hold is a no-op.
func (s *Service) RemoveItemFromOrder(ctx context.Context, orderID, productID string) (_ *domain.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseRemoveItem, "RemoveItemFromOrder",
		attribute.String("order.id", orderID),
		attribute.String("product.id", productID),
	)
	defer func() { run.End(err) }()
	run.With(observability.F("order_id", orderID), observability.F("product_id", productID))

	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		run.Fail(statusFor(err, "ORDER_LOAD_FAILED"))
		return nil, err
	}
	if !o.IsPending() {
		run.Fail("INVALID_STATE")
		return nil, &errs.InvalidStateError{Entity: "order", ID: o.ID, Current: string(o.Status), Required: string(domain.StatusPending)}
	}
	line, ok := o.Item(productID)
	if !ok {
		run.Note("NOOP_ITEM_ABSENT")
		return o, nil
	}

	if err := o.RemoveItem(productID); err != nil {
		run.Fail(statusFor(err, "REMOVE_ITEM_FAILED"))
		return nil, err
	}
	hold := []catalog.Hold{{ProductID: productID, Quantity: line.Quantity}}
	if err := s.releaseAndStore(ctx, run, hold, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ProcessPayment settles the order through the method, then turns every line's reservation into a sale.
// Every failure after the order is loaded is reported as a PaymentRejectedError; when the order was
// not pending the cause is the InvalidStateError. A rejected settlement touches no stock.
func (s *Service) ProcessPayment(ctx context.Context, in PaymentInput) (_ *domain.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCasePay, "ProcessPayment", attribute.String("order.id", in.OrderID))
	defer func() { run.End(err) }()
	run.With(observability.F("order_id", in.OrderID))

	unlock := s.locks.Lock(in.OrderID)
	defer unlock()

	o, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		run.Fail(statusFor(err, "ORDER_LOAD_FAILED"))
		return nil, err
	}
	if !o.IsPending() {
		run.Fail("INVALID_STATE")
		return nil, &errs.PaymentRejectedError{
			OrderID: o.ID,
			Reason:  "order is not pending",
			Cause:   &errs.InvalidStateError{Entity: "order", ID: o.ID, Current: string(o.Status), Required: string(domain.StatusPending)},
		}
	}

	from := o.Status
	if err := o.ConfirmPayment(in.Method); err != nil {
		var rejected *errs.PaymentRejectedError
		switch {
		case errors.As(err, &rejected):
			run.Fail("PAYMENT_DECLINED")
			return nil, err
		case errors.Is(err, errs.ErrEmptyOrder):
			run.Fail("EMPTY_ORDER")
			return nil, err
		case errors.Is(err, errs.ErrValidation):
			run.Fail("VALIDATION_FAILED")
			return nil, err
		default:
			run.Fail("CONFIRM_PAYMENT_FAILED")
			return nil, &errs.PaymentRejectedError{OrderID: o.ID, Reason: "payment confirmation failed", Cause: err}
		}
	}
	run.Span().SetAttributes(attribute.String("payment.kind", string(o.Payment.Kind)))
	run.With(observability.F("payment_kind", o.Payment.Kind), observability.F("total", o.Total().StringFixed(2)))

	confirmed := make([]domain.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		if err := s.ledger.ConfirmSale(ctx, it.ProductID, it.Quantity); err != nil {
			run.Fail("CONFIRM_SALE_FAILED")
			s.revertSales(ctx, run, confirmed)
			return nil, &errs.PaymentRejectedError{OrderID: o.ID, Reason: "stock confirmation failed for " + it.ProductID, Cause: err}
		}
		confirmed = append(confirmed, it)
	}

	if err := s.orders.Update(ctx, o); err != nil {
		run.Fail("REPO_UPDATE_FAILED")
		s.revertSales(ctx, run, confirmed)
		return nil, &errs.PaymentRejectedError{OrderID: o.ID, Reason: "order could not be stored", Cause: err}
	}

	sold := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		sold = append(sold, it.ProductID)
	}
	s.ledger.NotifyLowStock(ctx, sold...)

	_ = run.Publish(ctx, s.publisher, domain.NewPaidEvent(o))
	_ = run.Publish(ctx, s.publisher, domain.NewStatusChangedEvent(o, from))
	return o, nil
}

// CancelOrder moves the order to cancelled. Reservations exist only while the order is pending,
// so only a pending order hands stock back; a paid order keeps its sale.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (_ *domain.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCaseCancel, "CancelOrder", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()
	run.With(observability.F("order_id", orderID))

	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		run.Fail(statusFor(err, "ORDER_LOAD_FAILED"))
		return nil, err
	}

	from := o.Status
	hadReservations := o.IsPending()
	if err := o.Cancel(); err != nil {
		run.Fail(statusFor(err, "CANCEL_FAILED"))
		return nil, err
	}

	var holds []catalog.Hold
	if hadReservations {
		holds = make([]catalog.Hold, 0, len(o.Items))
		for _, it := range o.Items {
			holds = append(holds, catalog.Hold{ProductID: it.ProductID, Quantity: it.Quantity})
		}
	}
	if err := s.releaseAndStore(ctx, run, holds, o); err != nil {
		return nil, err
	}

	run.With(observability.F("released_lines", len(holds)))
	_ = run.Publish(ctx, s.publisher, domain.NewCancelledEvent(o, from))
	_ = run.Publish(ctx, s.publisher, domain.NewStatusChangedEvent(o, from))
	return o, nil
}

func (s *Service) StartPreparation(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, useCasePrepare, "StartPreparation", orderID, (*domain.Order).StartPreparation)
}

func (s *Service) MarkReady(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, useCaseReady, "MarkReady", orderID, (*domain.Order).MarkReady)
}

func (s *Service) Complete(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, useCaseComplete, "Complete", orderID, (*domain.Order).Complete)
}

func (s *Service) transition(ctx context.Context, useCase, spanName, orderID string, step func(*domain.Order) error) (_ *domain.Order, err error) {
	ctx, run := s.ins.Begin(ctx, useCase, spanName, attribute.String("order.id", orderID))
	defer func() { run.End(err) }()
	run.With(observability.F("order_id", orderID))

	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		run.Fail(statusFor(err, "ORDER_LOAD_FAILED"))
		return nil, err
	}
	from := o.Status
	if err := step(o); err != nil {
		run.Fail(statusFor(err, "TRANSITION_FAILED"))
		return nil, err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		run.Fail("REPO_UPDATE_FAILED")
		return nil, fmt.Errorf("order: update: %w", err)
	}
	run.With(observability.F("from", from), observability.F("to", o.Status))
	_ = run.Publish(ctx, s.publisher, domain.NewStatusChangedEvent(o, from))
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *Service) ListByState(ctx context.Context, status domain.Status) ([]*domain.Order, error) {
	return s.orders.ListByState(ctx, status)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	if customerID == "" {
		return nil, errs.Validation("customer id is required")
	}
	return s.orders.ListByCustomer(ctx, customerID)
}

func (s *Service) compensate(ctx context.Context, run *application.Run, op, productID string, qty int, fn func(context.Context, string, int) error) {
	// Compensation must run even if the caller gave up.
	ctx = context.WithoutCancel(ctx)
	if err := fn(ctx, productID, qty); err != nil {
		run.Logger().Error(compensationFailed,
			observability.F("operation", op),
			observability.F("product_id", productID),
			observability.F("quantity", qty),
			observability.F("error", err),
		)
	}
}

func (s *Service) revertSales(ctx context.Context, run *application.Run, items []domain.LineItem) {
	for i := len(items) - 1; i >= 0; i-- {
		s.compensate(ctx, run, "revert_sale", items[i].ProductID, items[i].Quantity, s.ledger.RevertSale)
	}
}

// releaseAndStore hands holds back to the ledger and persists o in one step. If either side fails
// the ledger keeps the holds and the stored order is untouched.
func (s *Service) releaseAndStore(ctx context.Context, run *application.Run, holds []catalog.Hold, o *domain.Order) error {
	var storeErr error
	err := s.ledger.ReleaseAndCommit(ctx, holds, func(ctx context.Context) error {
		storeErr = s.orders.Update(ctx, o)
		return storeErr
	})
	switch {
	case storeErr != nil:
		run.Fail("REPO_UPDATE_FAILED")
		return fmt.Errorf("order: update: %w", storeErr)
	case err != nil:
		run.Fail(statusFor(err, "RELEASE_FAILED"))
		return err
	}
	return nil
}

func statusFor(err error, fallback string) string {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, errs.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, errs.ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, errs.ErrValidation):
		return "VALIDATION_FAILED"
	default:
		return fallback
	}
}
