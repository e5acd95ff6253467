package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	domain "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entityOrder = "order"

const orderColumns = `id, customer_id, status, items, payment, created_at, paid_at, updated_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) error {
	items, pay, err := encodeOrder(o)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (id, customer_id, status, items, payment, created_at, paid_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.CustomerID, string(o.Status), items, pay, o.CreatedAt, o.PaidAt, o.UpdatedAt,
	)
	return translate(err, entityOrder, o.ID)
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	items, pay, err := encodeOrder(o)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET customer_id = $2, status = $3, items = $4, payment = $5, paid_at = $6, updated_at = $7
		WHERE id = $1`,
		o.ID, o.CustomerID, string(o.Status), items, pay, o.PaidAt, o.UpdatedAt,
	)
	if err != nil {
		return translate(err, entityOrder, o.ID)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound(entityOrder, o.ID)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, entityOrder, id)
	}
	return o, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
}

func (r *OrderRepository) ListByState(ctx context.Context, status domain.Status) ([]*domain.Order, error) {
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at`, string(status))
}

// ListByDate returns orders created on day's calendar date, in day's location.
func (r *OrderRepository) ListByDate(ctx context.Context, day time.Time) ([]*domain.Order, error) {
	from := startOfDay(day)
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`,
		from, from.AddDate(0, 0, 1))
}

func (r *OrderRepository) ListCompletedInRange(ctx context.Context, from, to time.Time) ([]*domain.Order, error) {
	lo := startOfDay(from)
	hi := startOfDay(to.In(from.Location())).AddDate(0, 0, 1)
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 AND created_at >= $2 AND created_at < $3 ORDER BY created_at`,
		string(domain.StatusCompleted), lo, hi)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o      domain.Order
		status string
		items  []byte
		pay    []byte
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &status, &items, &pay, &o.CreatedAt, &o.PaidAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = domain.Status(status)
	return decodeOrder(o, items, pay)
}

func encodeOrder(o *domain.Order) (items, pay []byte, err error) {
	lines := o.Items
	if lines == nil {
		lines = []domain.LineItem{}
	}
	if items, err = json.Marshal(lines); err != nil {
		return nil, nil, fmt.Errorf("postgres: encode items of %q: %w", o.ID, err)
	}
	if o.Payment != nil {
		if pay, err = json.Marshal(o.Payment); err != nil {
			return nil, nil, fmt.Errorf("postgres: encode payment of %q: %w", o.ID, err)
		}
	}
	return items, pay, nil
}

func decodeOrder(o domain.Order, items, pay []byte) (*domain.Order, error) {
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("order %q: items: %w", o.ID, err)
		}
	}
	if len(pay) > 0 {
		var rec payment.Record
		if err := json.Unmarshal(pay, &rec); err != nil {
			return nil, fmt.Errorf("order %q: payment: %w", o.ID, err)
		}
		o.Payment = &rec
	}
	return domain.Restore(o)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
