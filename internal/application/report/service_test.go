package report

import (
	"context"
	"testing"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	domorder "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/payment"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedMethod struct{ kind payment.Kind }

func (fixedMethod) Accept(decimal.Decimal) bool { return true }
func (f fixedMethod) Record() payment.Record    { return payment.Record{Kind: f.kind} }

var day = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func storeOrder(t *testing.T, repo *memory.OrderRepository, id string, created time.Time, kind payment.Kind, complete bool, lines map[*catalog.Product]int) {
	t.Helper()
	o, err := domorder.New(id, "c-"+id)
	require.NoError(t, err)
	for p, qty := range lines {
		require.NoError(t, o.AddItem(p, qty))
	}
	require.NoError(t, o.ConfirmPayment(fixedMethod{kind: kind}))
	if complete {
		require.NoError(t, o.StartPreparation())
		require.NoError(t, o.MarkReady())
		require.NoError(t, o.Complete())
	}
	o.CreatedAt = created
	require.NoError(t, repo.Save(context.Background(), o))
}

func newProducts(t *testing.T) (*catalog.Product, *catalog.Product) {
	t.Helper()
	coffee, err := catalog.NewBeverage("BEB001", "Americano", decimal.NewFromInt(1000), 50, catalog.BeverageAttrs{Type: catalog.BeverageCoffee}, "")
	require.NoError(t, err)
	muffin, err := catalog.NewFood("SNK003", "Muffin", decimal.NewFromInt(2000), 50, catalog.FoodAttrs{Type: catalog.FoodSnack}, "")
	require.NoError(t, err)
	return coffee, muffin
}

func TestDailyReportCountsOnlyCompletedOrdersOfThatDay(t *testing.T) {
	repo := memory.NewOrderRepository()
	coffee, muffin := newProducts(t)
	storeOrder(t, repo, "a", day, payment.KindCash, true, map[*catalog.Product]int{coffee: 2})
	storeOrder(t, repo, "b", day.Add(3*time.Hour), payment.KindCard, true, map[*catalog.Product]int{coffee: 1, muffin: 3})
	storeOrder(t, repo, "c", day, payment.KindCard, false, map[*catalog.Product]int{muffin: 9})
	storeOrder(t, repo, "d", day.AddDate(0, 0, 1), payment.KindCash, true, map[*catalog.Product]int{muffin: 1})

	svc := NewService(repo, nil)
	sales, err := svc.DailyReport(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, 2, sales.Orders)
	// (2*1190) + (1190 + 3*2380)
	assert.Equal(t, "10710.00", sales.Revenue.StringFixed(2))
	assert.Equal(t, "5355.00", sales.AverageTicket().StringFixed(2))

	require.Len(t, sales.Products, 2)
	assert.Equal(t, "BEB001", sales.Products[0].ProductID)
	assert.Equal(t, 3, sales.Products[0].Quantity)
	assert.Equal(t, "SNK003", sales.Products[1].ProductID)

	require.Len(t, sales.PaymentMethods, 2)
	assert.Equal(t, payment.KindCard, sales.PaymentMethods[0].Kind)
	assert.Equal(t, 1, sales.PaymentMethods[0].Transactions)

	n, err := svc.CompletedCount(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTopSellersAndRevenueOverRange(t *testing.T) {
	repo := memory.NewOrderRepository()
	coffee, muffin := newProducts(t)
	storeOrder(t, repo, "a", day, payment.KindCash, true, map[*catalog.Product]int{coffee: 1})
	storeOrder(t, repo, "b", day.AddDate(0, 0, 2), payment.KindVoucher, true, map[*catalog.Product]int{muffin: 4})
	storeOrder(t, repo, "c", day.AddDate(0, 0, 5), payment.KindCash, true, map[*catalog.Product]int{coffee: 10})

	svc := NewService(repo, nil)
	ctx := context.Background()

	top, err := svc.TopSellers(ctx, day, day.AddDate(0, 0, 2), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "SNK003", top[0].ProductID)
	assert.Equal(t, 1, top[0].Rank)

	rev, err := svc.Revenue(ctx, day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, "10710.00", rev.StringFixed(2))

	_, err = svc.PeriodReport(ctx, day, day.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestEmptyReport(t *testing.T) {
	sales, err := NewService(memory.NewOrderRepository(), nil).DailyReport(context.Background(), day)
	require.NoError(t, err)
	assert.Zero(t, sales.Orders)
	assert.True(t, sales.AverageTicket().IsZero())
	assert.Empty(t, sales.Products)
}
