package order

import (
	"context"
	"errors"
	"testing"

	"github.com/Zhima-Mochi/cafeteria/internal/application/inventory"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	domain "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/payment"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("order store unavailable")

// flakyOrders shares the fixture's store but lets a test intercept Update.
type flakyOrders struct {
	*memory.OrderRepository
	onUpdate func(ctx context.Context, o *domain.Order) error
}

func (f *flakyOrders) Update(ctx context.Context, o *domain.Order) error {
	if f.onUpdate != nil {
		if err := f.onUpdate(ctx, o); err != nil {
			return err
		}
	}
	return f.OrderRepository.Update(ctx, o)
}

func (f *fixture) withFailingStore(onUpdate func(context.Context, *domain.Order) error) *Service {
	repo := &flakyOrders{OrderRepository: f.orders, onUpdate: onUpdate}
	return NewService(repo, f.ledger, &seqIDs{}, f.pub, nil)
}

func alwaysFail(context.Context, *domain.Order) error { return errStoreDown }

func (f *fixture) assertUnchanged(t *testing.T, orderID string, wantBeb, wantSnk int) {
	t.Helper()
	stored, err := f.svc.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	require.Len(t, stored.Items, 2)

	_, reserved := f.counters(t, "BEB001")
	assert.Equal(t, wantBeb, reserved)
	_, reserved = f.counters(t, "SNK001")
	assert.Equal(t, wantSnk, reserved)
}

func TestAddItemReleasesWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.twoItemOrder(t)
	svc := f.withFailingStore(alwaysFail)

	_, err := svc.AddItemToOrder(ctx, AddItemInput{OrderID: o.ID, ProductID: "BEB001", Quantity: 3})
	require.ErrorIs(t, err, errStoreDown)

	f.assertUnchanged(t, o.ID, 2, 1)
	stored, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	line, ok := stored.Item("BEB001")
	require.True(t, ok)
	assert.Equal(t, 2, line.Quantity)
}

func TestRemoveItemKeepsHoldWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.twoItemOrder(t)
	svc := f.withFailingStore(alwaysFail)

	_, err := svc.RemoveItemFromOrder(ctx, o.ID, "BEB001")
	require.ErrorIs(t, err, errStoreDown)

	f.assertUnchanged(t, o.ID, 2, 1)
}

func TestCancelKeepsHoldsWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.twoItemOrder(t)

	deactivated := make(chan error, 1)
	grabbed := make(chan error, 1)
	svc := f.withFailingStore(func(context.Context, *domain.Order) error {
		// Both calls wait for the product locks held around the store write.
		go func() {
			_, err := f.ledger.Deactivate(ctx, "BEB001")
			deactivated <- err
		}()
		go func() { grabbed <- f.ledger.Reserve(ctx, "SNK001", 10) }()
		return errStoreDown
	})

	_, err := svc.CancelOrder(ctx, o.ID)
	require.ErrorIs(t, err, errStoreDown)
	require.NoError(t, <-deactivated)
	require.ErrorIs(t, <-grabbed, errs.ErrInsufficientStock)

	f.assertUnchanged(t, o.ID, 2, 1)
	p, err := f.ledger.Product(ctx, "BEB001")
	require.NoError(t, err)
	assert.False(t, p.Active)
}

func TestCancelOfEmptyOrderWithFailingStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, err := f.svc.CreateOrder(ctx, "student-1")
	require.NoError(t, err)

	_, err = f.withFailingStore(alwaysFail).CancelOrder(ctx, o.ID)
	require.ErrorIs(t, err, errStoreDown)

	stored, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestStockLowWaitsForStoredPayment(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	ledger := inventory.NewLedger(memory.NewProductRepository(), nil,
		inventory.WithPublisher(pub),
		inventory.WithLowStockThreshold(9),
	)
	coffee, err := catalog.NewBeverage("BEB001", "Americano", decimal.NewFromInt(3500), 10,
		catalog.BeverageAttrs{Type: catalog.BeverageCoffee, Hot: true}, "")
	require.NoError(t, err)
	require.NoError(t, ledger.RegisterProduct(ctx, coffee))

	orders := memory.NewOrderRepository()
	good := NewService(orders, ledger, &seqIDs{}, nil, nil)
	bad := NewService(&flakyOrders{OrderRepository: orders, onUpdate: alwaysFail}, ledger, &seqIDs{}, nil, nil)

	o, err := good.CreateOrder(ctx, "student-1")
	require.NoError(t, err)
	_, err = good.AddItemToOrder(ctx, AddItemInput{OrderID: o.ID, ProductID: "BEB001", Quantity: 2})
	require.NoError(t, err)

	cash, err := payment.NewCash(decimal.NewFromInt(20000))
	require.NoError(t, err)
	_, err = bad.ProcessPayment(ctx, PaymentInput{OrderID: o.ID, Method: cash})
	require.ErrorIs(t, err, errs.ErrPaymentRejected)
	assert.Empty(t, pub.names())

	p, err := ledger.Product(ctx, "BEB001")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock())
	assert.Equal(t, 2, p.Reserved())

	cash, err = payment.NewCash(decimal.NewFromInt(20000))
	require.NoError(t, err)
	_, err = good.ProcessPayment(ctx, PaymentInput{OrderID: o.ID, Method: cash})
	require.NoError(t, err)
	assert.Equal(t, []string{catalog.StockLowEvent{}.EventName()}, pub.names())
}
