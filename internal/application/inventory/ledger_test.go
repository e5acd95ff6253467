package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	domoutbox "github.com/Zhima-Mochi/cafeteria/internal/domain/outbox"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Events() []domoutbox.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domoutbox.Event(nil), r.events...)
}

func newLedger(t *testing.T, opts ...Option) (*Ledger, *memory.ProductRepository) {
	t.Helper()
	repo := memory.NewProductRepository()
	return NewLedger(repo, nil, opts...), repo
}

func addCoffee(t *testing.T, l *Ledger, id string, stock int) {
	t.Helper()
	p, err := catalog.NewBeverage(id, "Coffee "+id, decimal.NewFromInt(3500), stock,
		catalog.BeverageAttrs{Type: catalog.BeverageCoffee, Hot: true}, "")
	require.NoError(t, err)
	require.NoError(t, l.RegisterProduct(context.Background(), p))
}

func counters(t *testing.T, l *Ledger, id string) (stock, reserved int) {
	t.Helper()
	p, err := l.Product(context.Background(), id)
	require.NoError(t, err)
	return p.Stock(), p.Reserved()
}

func TestReserveThenConfirmSaleScenario(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "P1", 10)

	require.NoError(t, l.Reserve(ctx, "P1", 4))
	avail, err := l.Available(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 6, avail)

	err = l.ConfirmSale(ctx, "P1", 5)
	require.ErrorIs(t, err, errs.ErrInvalidState)
	stock, reserved := counters(t, l, "P1")
	assert.Equal(t, 10, stock)
	assert.Equal(t, 4, reserved)

	require.NoError(t, l.ConfirmSale(ctx, "P1", 4))
	stock, reserved = counters(t, l, "P1")
	assert.Equal(t, 6, stock)
	assert.Equal(t, 0, reserved)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "P1", 10)
	require.NoError(t, l.Reserve(ctx, "P1", 2))

	require.NoError(t, l.Reserve(ctx, "P1", 3))
	require.NoError(t, l.Release(ctx, "P1", 3))

	stock, reserved := counters(t, l, "P1")
	assert.Equal(t, 10, stock)
	assert.Equal(t, 2, reserved)
}

func TestReserveFailures(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "P1", 3)
	addCoffee(t, l, "P2", 3)
	_, err := l.Deactivate(ctx, "P2")
	require.NoError(t, err)

	t.Run("unknown product", func(t *testing.T) {
		assert.ErrorIs(t, l.Reserve(ctx, "nope", 1), errs.ErrNotFound)
	})
	t.Run("inactive product", func(t *testing.T) {
		err := l.Reserve(ctx, "P2", 1)
		var ise *errs.InvalidStateError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, "inactive", ise.Current)
	})
	t.Run("insufficient stock carries quantities", func(t *testing.T) {
		err := l.Reserve(ctx, "P1", 4)
		var ins *errs.InsufficientStockError
		require.ErrorAs(t, err, &ins)
		assert.Equal(t, 3, ins.Available)
		assert.Equal(t, 4, ins.Requested)
	})
	t.Run("non-positive quantity", func(t *testing.T) {
		assert.ErrorIs(t, l.Reserve(ctx, "P1", 0), errs.ErrValidation)
	})

	stock, reserved := counters(t, l, "P1")
	assert.Equal(t, 3, stock)
	assert.Equal(t, 0, reserved)
}

func TestReleaseMoreThanReservedIsRejected(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "P1", 5)
	require.NoError(t, l.Reserve(ctx, "P1", 2))

	assert.ErrorIs(t, l.Release(ctx, "P1", 3), errs.ErrInvalidState)
	_, reserved := counters(t, l, "P1")
	assert.Equal(t, 2, reserved)
}

func TestSetStockCannotDropBelowReserved(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "P1", 5)
	require.NoError(t, l.Reserve(ctx, "P1", 3))

	_, err := l.SetStock(ctx, "P1", 2)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = l.SetStock(ctx, "P1", -1)
	assert.ErrorIs(t, err, errs.ErrValidation)

	p, err := l.SetStock(ctx, "P1", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Available())

	p, err = l.Restock(ctx, "P1", 4)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock())
	_, err = l.Restock(ctx, "P1", 0)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "P1", 10)

	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Reserve(ctx, "P1", 1)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, errs.ErrInsufficientStock):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok.Load())
	assert.EqualValues(t, 30, short.Load())
	stock, reserved := counters(t, l, "P1")
	assert.Equal(t, 10, stock)
	assert.Equal(t, 10, reserved)
}

func TestRegisterProductConflict(t *testing.T) {
	l, _ := newLedger(t)
	addCoffee(t, l, "P1", 1)

	p, err := catalog.NewBeverage("P1", "Dup", decimal.NewFromInt(100), 1, catalog.BeverageAttrs{Type: catalog.BeverageTea}, "")
	require.NoError(t, err)
	assert.ErrorIs(t, l.RegisterProduct(context.Background(), p), errs.ErrConflict)
}

func TestLowStockAndOutOfStock(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "A", 4)
	addCoffee(t, l, "B", 0)
	addCoffee(t, l, "C", 9)
	addCoffee(t, l, "D", 1)
	_, err := l.Deactivate(ctx, "D")
	require.NoError(t, err)

	low, err := l.LowStock(ctx, 0)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "B", low[0].ID)
	assert.Equal(t, "A", low[1].ID)

	out, err := l.OutOfStock(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].ID)

	avail, err := l.ListAvailable(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(avail))
	for _, p := range avail {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"A", "C"}, ids)

	assert.True(t, l.CheckAvailability(ctx, "C", 9))
	assert.False(t, l.CheckAvailability(ctx, "C", 10))
	assert.False(t, l.CheckAvailability(ctx, "D", 1))
	assert.False(t, l.CheckAvailability(ctx, "zzz", 1))
}

func TestNotifyLowStockAfterSale(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	l, _ := newLedger(t, WithPublisher(pub), WithLowStockThreshold(3))
	addCoffee(t, l, "P1", 5)

	require.NoError(t, l.Reserve(ctx, "P1", 1))
	require.NoError(t, l.ConfirmSale(ctx, "P1", 1))
	l.NotifyLowStock(ctx, "P1")
	assert.Empty(t, pub.Events())

	require.NoError(t, l.Reserve(ctx, "P1", 1))
	require.NoError(t, l.ConfirmSale(ctx, "P1", 1))
	assert.Empty(t, pub.Events(), "a sale alone must not publish")

	l.NotifyLowStock(ctx, "P1", "P1", "missing")
	events := pub.Events()
	require.Len(t, events, 1)
	evt, ok := events[0].(catalog.StockLowEvent)
	require.True(t, ok)
	assert.Equal(t, "P1", evt.ProductID)
	assert.Equal(t, 3, evt.Stock)
	assert.Equal(t, 3, evt.Threshold)
}

func TestReleaseAndCommit(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "A", 5)
	addCoffee(t, l, "B", 5)
	require.NoError(t, l.Reserve(ctx, "A", 2))
	require.NoError(t, l.Reserve(ctx, "B", 3))

	committed := false
	err := l.ReleaseAndCommit(ctx, []catalog.Hold{{ProductID: "B", Quantity: 3}, {ProductID: "A", Quantity: 2}},
		func(context.Context) error {
			committed = true
			return nil
		})
	require.NoError(t, err)
	assert.True(t, committed)
	_, reserved := counters(t, l, "A")
	assert.Equal(t, 0, reserved)
	_, reserved = counters(t, l, "B")
	assert.Equal(t, 0, reserved)

	require.NoError(t, l.ReleaseAndCommit(ctx, nil, func(context.Context) error { return nil }))
}

func TestReleaseAndCommitRestoresOnCommitFailure(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "P1", 2)
	require.NoError(t, l.Reserve(ctx, "P1", 2))
	_, err := l.Deactivate(ctx, "P1")
	require.NoError(t, err)

	storeDown := errors.New("store down")
	competitor := make(chan error, 1)
	err = l.ReleaseAndCommit(ctx, []catalog.Hold{{ProductID: "P1", Quantity: 2}}, func(context.Context) error {
		go func() { competitor <- l.Reserve(ctx, "P1", 1) }()
		return storeDown
	})
	require.ErrorIs(t, err, storeDown)

	stock, reserved := counters(t, l, "P1")
	assert.Equal(t, 2, stock)
	assert.Equal(t, 2, reserved, "hold must survive even though the product is inactive")

	// The competing reservation ran either while the locks were held or after the restore.
	require.Error(t, <-competitor)
}

func TestReleaseAndCommitRejectsOverRelease(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "P1", 5)
	require.NoError(t, l.Reserve(ctx, "P1", 1))

	called := false
	err := l.ReleaseAndCommit(ctx, []catalog.Hold{{ProductID: "P1", Quantity: 2}}, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, errs.ErrInvalidState)
	assert.False(t, called)
	_, reserved := counters(t, l, "P1")
	assert.Equal(t, 1, reserved)

	err = l.ReleaseAndCommit(ctx, []catalog.Hold{{ProductID: "nope", Quantity: 1}}, func(context.Context) error { return nil })
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUpdatePriceDoesNotTouchCounters(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	addCoffee(t, l, "P1", 5)
	require.NoError(t, l.Reserve(ctx, "P1", 2))

	p, err := l.UpdatePrice(ctx, "P1", decimal.NewFromInt(4000))
	require.NoError(t, err)
	assert.True(t, p.BasePrice.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, 2, p.Reserved())

	_, err = l.UpdatePrice(ctx, "P1", decimal.Zero)
	assert.ErrorIs(t, err, errs.ErrValidation)
}
