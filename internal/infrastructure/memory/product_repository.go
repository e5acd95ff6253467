package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
)

type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*catalog.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		products: make(map[string]*catalog.Product),
	}
}

func (r *ProductRepository) Add(ctx context.Context, p *catalog.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("product repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[p.ID]; exists {
		return fmt.Errorf("product %q: %w", p.ID, errs.ErrConflict)
	}
	r.products[p.ID] = p.Clone()
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p *catalog.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("product repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[p.ID]; !exists {
		return errs.NotFound("product", p.ID)
	}
	r.products[p.ID] = p.Clone()
	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*catalog.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, errs.NotFound("product", id)
	}
	return p.Clone(), nil
}

func (r *ProductRepository) Exists(ctx context.Context, id string) (bool, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.products[id]
	return ok, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*catalog.Product, error) {
	return r.filter(ctx, func(*catalog.Product) bool { return true })
}

func (r *ProductRepository) ListActive(ctx context.Context) ([]*catalog.Product, error) {
	return r.filter(ctx, func(p *catalog.Product) bool { return p.Active })
}

func (r *ProductRepository) ListWithStock(ctx context.Context) ([]*catalog.Product, error) {
	return r.filter(ctx, func(p *catalog.Product) bool { return p.Active && p.Available() > 0 })
}

// filter returns matching clones ordered by id.
func (r *ProductRepository) filter(ctx context.Context, keep func(*catalog.Product) bool) ([]*catalog.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*catalog.Product, 0, len(r.products))
	for _, p := range r.products {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
