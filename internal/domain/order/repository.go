package order

import (
	"context"
	"time"
)

// Repository persists orders. Update on an unknown id fails with errs.ErrNotFound.
type Repository interface {
	Save(ctx context.Context, order *Order) error
	Update(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*Order, error)
	ListByState(ctx context.Context, status Status) ([]*Order, error)
	ListByDate(ctx context.Context, day time.Time) ([]*Order, error)
	ListCompletedInRange(ctx context.Context, from, to time.Time) ([]*Order, error)
}

// SameDay reports whether a and b fall on the same calendar date in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// InDateRange reports whether t's date lies within [from, to], comparing dates only.
func InDateRange(t, from, to time.Time) bool {
	day := truncateDay(t)
	return !day.Before(truncateDay(from.In(t.Location()))) && !day.After(truncateDay(to.In(t.Location())))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
