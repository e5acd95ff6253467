// Package inventory is the product stock ledger: per-product serialised stock mutations plus catalog upkeep.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/application"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	domoutbox "github.com/Zhima-Mochi/cafeteria/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeteria/internal/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/observability/logctx"
	"github.com/Zhima-Mochi/cafeteria/internal/pkg/keylock"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	inventoryService = "inventory-service"

	DefaultLowStockThreshold = 5

	opReserve     = "reserve"
	opRelease     = "release"
	opConfirmSale = "confirm_sale"
	opRevertSale  = "revert_sale"
	opSetStock    = "set_stock"
	opRestock     = "restock"
	opUpdatePrice = "update_price"
	opDeactivate  = "deactivate"
	opActivate    = "activate"
)

// Ledger owns every stock counter change. Mutations on one product are serialised by a
// per-product lock. Product locks are taken after any order lock and, when several are held, in id order.
type Ledger struct {
	repo      catalog.Repository
	locks     *keylock.Locker
	publisher domoutbox.Publisher
	threshold int

	ins      application.Instruments
	log      observability.Logger
	stockOps observability.Counter // stock_operations_total{operation,outcome}
}

type Option func(*Ledger)

// WithPublisher makes the ledger emit catalog.stock_low after sales.
func WithPublisher(p domoutbox.Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// WithLowStockThreshold overrides DefaultLowStockThreshold.
func WithLowStockThreshold(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.threshold = n
		}
	}
}

func NewLedger(repo catalog.Repository, tel observability.Observability, opts ...Option) *Ledger {
	tel = observability.Or(tel)
	ins := application.NewInstruments(tel, inventoryService)
	l := &Ledger{
		repo:      repo,
		locks:     keylock.New(),
		publisher: domoutbox.NopPublisher{},
		threshold: DefaultLowStockThreshold,
		ins:       ins,
		log:       ins.Logger(),
		stockOps:  tel.Metrics().Counter(observability.MStockOperations),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) LowStockThreshold() int { return l.threshold }

// Reserve atomically checks availability and holds qty units of id.
func (l *Ledger) Reserve(ctx context.Context, id string, qty int) error {
	_, err := l.mutate(ctx, opReserve, id, qty, func(p *catalog.Product) error { return p.Reserve(qty) })
	return err
}

// Release drops a hold of exactly qty units.
func (l *Ledger) Release(ctx context.Context, id string, qty int) error {
	_, err := l.mutate(ctx, opRelease, id, qty, func(p *catalog.Product) error { return p.Release(qty) })
	return err
}

// ConfirmSale converts qty reserved units into a stock deduction. It publishes nothing;
// callers report low stock through NotifyLowStock once the sale is final.
func (l *Ledger) ConfirmSale(ctx context.Context, id string, qty int) error {
	_, err := l.mutate(ctx, opConfirmSale, id, qty, func(p *catalog.Product) error { return p.ConfirmSale(qty) })
	return err
}

// NotifyLowStock emits catalog.stock_low for every active product in ids at or below the threshold.
func (l *Ledger) NotifyLowStock(ctx context.Context, ids ...string) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, err := l.repo.Get(ctx, id)
		if err != nil {
			logctx.FromOr(ctx, l.log).Warn("stock_low_check_failed",
				observability.F("product_id", id),
				observability.F("error", err),
			)
			continue
		}
		if p.Active && p.Stock() <= l.threshold {
			l.notifyLowStock(ctx, p)
		}
	}
}

// ReleaseAndCommit releases every hold and runs commit while the affected products stay locked.
// When commit fails the products are written back as they were, so the freed units are never
// visible to another order. commit must not call back into the ledger.
func (l *Ledger) ReleaseAndCommit(ctx context.Context, holds []catalog.Hold, commit func(context.Context) error) error {
	ids := make([]string, 0, len(holds))
	seen := make(map[string]bool, len(holds))
	for _, h := range holds {
		if !seen[h.ProductID] {
			seen[h.ProductID] = true
			ids = append(ids, h.ProductID)
		}
	}
	// Locks are always taken in id order.
	sort.Strings(ids)
	for _, id := range ids {
		unlock := l.locks.Lock(id)
		defer unlock()
	}

	before := make(map[string]*catalog.Product, len(ids))
	after := make(map[string]*catalog.Product, len(ids))
	for _, id := range ids {
		p, err := l.repo.Get(ctx, id)
		if err != nil {
			l.record(ctx, opRelease, id, 0, err)
			return err
		}
		before[id] = p.Clone()
		after[id] = p
	}
	for _, h := range holds {
		if err := after[h.ProductID].Release(h.Quantity); err != nil {
			l.record(ctx, opRelease, h.ProductID, h.Quantity, err)
			return err
		}
	}

	written := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := l.repo.Update(ctx, after[id]); err != nil {
			err = fmt.Errorf("inventory: %s: %w", opRelease, err)
			l.record(ctx, opRelease, id, 0, err)
			l.restore(ctx, before, written)
			return err
		}
		written = append(written, id)
	}
	if err := commit(ctx); err != nil {
		l.restore(ctx, before, written)
		for _, h := range holds {
			l.record(ctx, opRelease, h.ProductID, h.Quantity, err)
		}
		return err
	}
	for _, h := range holds {
		l.record(ctx, opRelease, h.ProductID, h.Quantity, nil)
	}
	return nil
}

// restore writes back snapshots taken under the product locks the caller still holds.
func (l *Ledger) restore(ctx context.Context, before map[string]*catalog.Product, ids []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if err := l.repo.Update(ctx, before[id]); err != nil {
			logctx.FromOr(ctx, l.log).Error("stock_restore_failed",
				observability.F("product_id", id),
				observability.F("error", err),
			)
		}
	}
}

// RevertSale puts back a confirmed sale as a reservation. Only payment compensation uses it.
func (l *Ledger) RevertSale(ctx context.Context, id string, qty int) error {
	_, err := l.mutate(ctx, opRevertSale, id, qty, func(p *catalog.Product) error { return p.RevertSale(qty) })
	return err
}

func (l *Ledger) SetStock(ctx context.Context, id string, stock int) (_ *catalog.Product, err error) {
	ctx, run := l.ins.Begin(ctx, "catalog.set_stock", "SetStock",
		attribute.String("product.id", id),
		attribute.Int("product.stock", stock),
	)
	defer func() { run.End(err) }()

	p, err := l.mutate(ctx, opSetStock, id, stock, func(p *catalog.Product) error { return p.SetStock(stock) })
	if err != nil {
		run.Fail(statusFor(err))
		return nil, err
	}
	return p, nil
}

// Restock adds delta units on top of the current stock.
func (l *Ledger) Restock(ctx context.Context, id string, delta int) (_ *catalog.Product, err error) {
	ctx, run := l.ins.Begin(ctx, "catalog.restock", "Restock",
		attribute.String("product.id", id),
		attribute.Int("product.delta", delta),
	)
	defer func() { run.End(err) }()

	if delta <= 0 {
		run.Fail("DELTA_INVALID")
		return nil, errs.Validation("restock quantity must be greater than zero")
	}
	p, err := l.mutate(ctx, opRestock, id, delta, func(p *catalog.Product) error { return p.SetStock(p.Stock() + delta) })
	if err != nil {
		run.Fail(statusFor(err))
		return nil, err
	}
	return p, nil
}

func (l *Ledger) RegisterProduct(ctx context.Context, p *catalog.Product) (err error) {
	if p == nil {
		return errs.Validation("product is required")
	}
	ctx, run := l.ins.Begin(ctx, "catalog.register", "RegisterProduct",
		attribute.String("product.id", p.ID),
		attribute.String("product.kind", string(p.Kind)),
	)
	defer func() { run.End(err) }()

	unlock := l.locks.Lock(p.ID)
	defer unlock()

	exists, err := l.repo.Exists(ctx, p.ID)
	if err != nil {
		run.Fail("REPO_LOOKUP_FAILED")
		return fmt.Errorf("inventory: register: %w", err)
	}
	if exists {
		run.Fail("PRODUCT_EXISTS")
		return fmt.Errorf("product %q: %w", p.ID, errs.ErrConflict)
	}
	if err := l.repo.Add(ctx, p); err != nil {
		run.Fail("REPO_ADD_FAILED")
		return fmt.Errorf("inventory: register: %w", err)
	}
	return nil
}

func (l *Ledger) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (_ *catalog.Product, err error) {
	ctx, run := l.ins.Begin(ctx, "catalog.update_price", "UpdatePrice",
		attribute.String("product.id", id),
		attribute.String("product.price", price.StringFixed(2)),
	)
	defer func() { run.End(err) }()

	p, err := l.mutate(ctx, opUpdatePrice, id, 0, func(p *catalog.Product) error { return p.UpdatePrice(price) })
	if err != nil {
		run.Fail(statusFor(err))
		return nil, err
	}
	return p, nil
}

// Deactivate hides a product from sale. Existing reservations stay valid until released or sold.
func (l *Ledger) Deactivate(ctx context.Context, id string) (_ *catalog.Product, err error) {
	ctx, run := l.ins.Begin(ctx, "catalog.deactivate", "Deactivate", attribute.String("product.id", id))
	defer func() { run.End(err) }()

	p, err := l.mutate(ctx, opDeactivate, id, 0, func(p *catalog.Product) error { p.Deactivate(); return nil })
	if err != nil {
		run.Fail(statusFor(err))
		return nil, err
	}
	return p, nil
}

func (l *Ledger) Activate(ctx context.Context, id string) (_ *catalog.Product, err error) {
	ctx, run := l.ins.Begin(ctx, "catalog.activate", "Activate", attribute.String("product.id", id))
	defer func() { run.End(err) }()

	p, err := l.mutate(ctx, opActivate, id, 0, func(p *catalog.Product) error { p.Activate(); return nil })
	if err != nil {
		run.Fail(statusFor(err))
		return nil, err
	}
	return p, nil
}

func (l *Ledger) Product(ctx context.Context, id string) (*catalog.Product, error) {
	return l.repo.Get(ctx, id)
}

func (l *Ledger) Available(ctx context.Context, id string) (int, error) {
	p, err := l.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Available(), nil
}

// CheckAvailability is a hint only; Reserve is the authoritative check.
func (l *Ledger) CheckAvailability(ctx context.Context, id string, qty int) bool {
	p, err := l.repo.Get(ctx, id)
	if err != nil {
		return false
	}
	return p.Active && qty > 0 && p.Available() >= qty
}

func (l *Ledger) List(ctx context.Context) ([]*catalog.Product, error) {
	return l.repo.List(ctx)
}

// ListAvailable returns active products with at least one unit not held by an order.
func (l *Ledger) ListAvailable(ctx context.Context) ([]*catalog.Product, error) {
	return l.repo.ListWithStock(ctx)
}

// LowStock returns active products whose stock is at or below threshold, lowest first.
// A non-positive threshold falls back to the configured one.
func (l *Ledger) LowStock(ctx context.Context, threshold int) ([]*catalog.Product, error) {
	if threshold <= 0 {
		threshold = l.threshold
	}
	return l.activeWhere(ctx, func(p *catalog.Product) bool { return p.Stock() <= threshold })
}

func (l *Ledger) OutOfStock(ctx context.Context) ([]*catalog.Product, error) {
	return l.activeWhere(ctx, func(p *catalog.Product) bool { return p.Stock() == 0 })
}

func (l *Ledger) activeWhere(ctx context.Context, keep func(*catalog.Product) bool) ([]*catalog.Product, error) {
	active, err := l.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("inventory: list active: %w", err)
	}
	out := make([]*catalog.Product, 0, len(active))
	for _, p := range active {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stock() < out[j].Stock() })
	return out, nil
}

// mutate runs fn as one read-modify-write under id's lock and returns the stored result.
func (l *Ledger) mutate(ctx context.Context, op, id string, qty int, fn func(*catalog.Product) error) (*catalog.Product, error) {
	unlock := l.locks.Lock(id)
	defer unlock()

	logger := logctx.FromOr(ctx, l.log).With(
		observability.F("operation", op),
		observability.F("product_id", id),
	)

	p, err := l.repo.Get(ctx, id)
	if err == nil {
		err = fn(p)
		if err == nil {
			if uerr := l.repo.Update(ctx, p); uerr != nil {
				err = fmt.Errorf("inventory: %s: %w", op, uerr)
			}
		}
	}

	l.record(ctx, op, id, qty, err)
	if err != nil {
		logger.Debug("stock_operation_rejected", observability.F("quantity", qty), observability.F("error", err))
		return nil, err
	}
	logger.Debug("stock_operation_applied",
		observability.F("quantity", qty),
		observability.F("stock", p.Stock()),
		observability.F("reserved", p.Reserved()),
	)
	return p, nil
}

// record counts one stock operation and marks it on the current span.
func (l *Ledger) record(ctx context.Context, op, id string, qty int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "rejected"
		if !isBusinessError(err) {
			outcome = "error"
		}
	}
	if l.stockOps != nil {
		l.stockOps.Add(1, observability.L("operation", op), observability.L("outcome", outcome))
	}
	trace.SpanFromContext(ctx).AddEvent("stock."+op, trace.WithAttributes(
		attribute.String("product.id", id),
		attribute.Int("quantity", qty),
		attribute.String("outcome", outcome),
	))
}

func (l *Ledger) notifyLowStock(ctx context.Context, p *catalog.Product) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 300*time.Millisecond)
	defer cancel()
	if err := l.publisher.Publish(pubCtx, catalog.NewStockLowEvent(p, l.threshold)); err != nil {
		logctx.FromOr(ctx, l.log).Warn("event_publish_failed",
			observability.F("event", catalog.StockLowEvent{}.EventName()),
			observability.F("product_id", p.ID),
			observability.F("error", err),
		)
	}
}

func isBusinessError(err error) bool {
	for _, target := range []error{errs.ErrNotFound, errs.ErrInsufficientStock, errs.ErrInvalidState, errs.ErrValidation} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return "PRODUCT_NOT_FOUND"
	case errors.Is(err, errs.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, errs.ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, errs.ErrValidation):
		return "VALIDATION_FAILED"
	default:
		return "REPO_FAILURE"
	}
}
