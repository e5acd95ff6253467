package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	domain "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("order %q: %w", order.ID, errs.ErrConflict)
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, errs.NotFound("order", id)
	}
	return order.Clone(), nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; !exists {
		return errs.NotFound("order", order.ID)
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	out := r.filter(ctx, func(o *domain.Order) bool { return o.CustomerID == customerID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *OrderRepository) ListByState(ctx context.Context, status domain.Status) ([]*domain.Order, error) {
	return r.oldestFirst(ctx, func(o *domain.Order) bool { return o.Status == status }), nil
}

func (r *OrderRepository) ListByDate(ctx context.Context, day time.Time) ([]*domain.Order, error) {
	return r.oldestFirst(ctx, func(o *domain.Order) bool { return domain.SameDay(day, o.CreatedAt) }), nil
}

func (r *OrderRepository) ListCompletedInRange(ctx context.Context, from, to time.Time) ([]*domain.Order, error) {
	return r.oldestFirst(ctx, func(o *domain.Order) bool {
		return o.Status == domain.StatusCompleted && domain.InDateRange(o.CreatedAt.In(from.Location()), from, to)
	}), nil
}

func (r *OrderRepository) oldestFirst(ctx context.Context, keep func(*domain.Order) bool) []*domain.Order {
	out := r.filter(ctx, keep)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *OrderRepository) filter(ctx context.Context, keep func(*domain.Order) bool) []*domain.Order {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	return out
}
