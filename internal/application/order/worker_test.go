package order

import (
	"context"
	"testing"
	"time"

	domain "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/payment"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/outbox"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKitchenWorkerStartsPreparation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bus := outbox.NewBus(nil)
	bus.Start(ctx)
	defer bus.Stop(ctx)
	f.svc.publisher = bus

	NewWorker(bus, f.ledger, StartPreparationUseCase(f.svc), nil).Start()

	o := f.twoItemOrder(t)
	cash, err := payment.NewCash(decimal.NewFromInt(20000))
	require.NoError(t, err)
	_, err = f.svc.ProcessPayment(ctx, PaymentInput{OrderID: o.ID, Method: cash})
	require.NoError(t, err)

	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Flush(flushCtx))

	stored, err := f.svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInPreparation, stored.Status)
}

func TestTicketUsesLongestPreparation(t *testing.T) {
	f := newFixture(t)
	w := NewWorker(nil, f.ledger, nil, nil)

	ticket := w.buildTicket(context.Background(), domain.PaidEvent{
		OrderID: "ord-1",
		Items: []domain.PaidItem{
			{ProductID: "BEB001", Name: "Americano", Quantity: 2},
			{ProductID: "SNK001", Name: "Empanada", Quantity: 1},
			{ProductID: "GONE", Name: "Retired", Quantity: 1},
		},
	})

	require.Len(t, ticket.Lines, 3)
	assert.False(t, ticket.Lines[0].Prepared)
	assert.True(t, ticket.Lines[1].Prepared)
	assert.False(t, ticket.Lines[2].Prepared)
	assert.Equal(t, time.Duration(0), ticket.Preparation)
}

func TestKitchenWorkerWithoutAutoStartLeavesOrderPaid(t *testing.T) {
	f := newFixture(t)
	w := NewWorker(nil, f.ledger, nil, nil)

	assert.NoError(t, w.handleOrderPaid(context.Background(), domain.PaidEvent{OrderID: "ord-9"}))
	assert.NoError(t, w.handleOrderPaid(context.Background(), domain.CancelledEvent{OrderID: "ord-9"}))
}
