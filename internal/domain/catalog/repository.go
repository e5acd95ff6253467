package catalog

import "context"

// Repository stores products keyed by id. Implementations return copies.
type Repository interface {
	Add(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	ListActive(ctx context.Context) ([]*Product, error)
	ListWithStock(ctx context.Context) ([]*Product, error)
	Exists(ctx context.Context, id string) (bool, error)
}
