package order

import (
	"context"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
)

type IDGenerator interface {
	NewID() string
}

// StockLedger is the slice of the inventory ledger the orchestrator drives.
// Every call is atomic per product and takes no lock the orchestrator holds.
// The commit passed to ReleaseAndCommit runs under the product locks and must only touch the order store.
type StockLedger interface {
	Product(ctx context.Context, id string) (*catalog.Product, error)
	Reserve(ctx context.Context, id string, qty int) error
	Release(ctx context.Context, id string, qty int) error
	ConfirmSale(ctx context.Context, id string, qty int) error
	RevertSale(ctx context.Context, id string, qty int) error
	ReleaseAndCommit(ctx context.Context, holds []catalog.Hold, commit func(context.Context) error) error
	NotifyLowStock(ctx context.Context, ids ...string)
}
