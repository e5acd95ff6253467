package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const entityProduct = "product"

const productColumns = `id, name, description, base_price::text, active, kind, attrs, stock, reserved, updated_at`

// ProductRepository implements catalog.Repository. Stock mutations are serialized by the
// inventory ledger in front of it, so rows are written whole.
type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

type productAttrs struct {
	Beverage *catalog.BeverageAttrs `json:"beverage,omitempty"`
	Food     *catalog.FoodAttrs     `json:"food,omitempty"`
}

func (r *ProductRepository) Add(ctx context.Context, p *catalog.Product) error {
	attrs, err := json.Marshal(productAttrs{Beverage: p.Beverage, Food: p.Food})
	if err != nil {
		return fmt.Errorf("postgres: encode attrs: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO products (id, name, description, base_price, active, kind, attrs, stock, reserved, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, p.Description, p.BasePrice.String(), p.Active, string(p.Kind), attrs,
		p.Stock(), p.Reserved(), p.UpdatedAt,
	)
	return translate(err, entityProduct, p.ID)
}

func (r *ProductRepository) Update(ctx context.Context, p *catalog.Product) error {
	attrs, err := json.Marshal(productAttrs{Beverage: p.Beverage, Food: p.Food})
	if err != nil {
		return fmt.Errorf("postgres: encode attrs: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET name = $2, description = $3, base_price = $4::numeric, active = $5, kind = $6,
		    attrs = $7, stock = $8, reserved = $9, updated_at = $10
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.BasePrice.String(), p.Active, string(p.Kind), attrs,
		p.Stock(), p.Reserved(), p.UpdatedAt,
	)
	if err != nil {
		return translate(err, entityProduct, p.ID)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound(entityProduct, p.ID)
	}
	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*catalog.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, translate(err, entityProduct, id)
	}
	return p, nil
}

func (r *ProductRepository) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, translate(err, entityProduct, id)
	}
	return ok, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*catalog.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
}

func (r *ProductRepository) ListActive(ctx context.Context) ([]*catalog.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products WHERE active ORDER BY id`)
}

func (r *ProductRepository) ListWithStock(ctx context.Context) ([]*catalog.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products WHERE active AND stock - reserved > 0 ORDER BY id`)
}

func (r *ProductRepository) query(ctx context.Context, sql string, args ...any) ([]*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list products: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (*catalog.Product, error) {
	var (
		p               catalog.Product
		price, kind     string
		attrs           []byte
		stock, reserved int
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Active, &kind, &attrs, &stock, &reserved, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return decodeProduct(p, price, kind, attrs, stock, reserved)
}

func decodeProduct(p catalog.Product, price, kind string, attrs []byte, stock, reserved int) (*catalog.Product, error) {
	base, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("product %q: price %q: %w", p.ID, price, err)
	}
	var a productAttrs
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &a); err != nil {
			return nil, fmt.Errorf("product %q: attrs: %w", p.ID, err)
		}
	}
	p.BasePrice = base
	p.Kind = catalog.Kind(kind)
	p.Beverage = a.Beverage
	p.Food = a.Food
	return catalog.Restore(p, stock, reserved)
}
