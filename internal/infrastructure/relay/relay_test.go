package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	domorder "github.com/Zhima-Mochi/cafeteria/internal/domain/order"
	obsprovider "github.com/Zhima-Mochi/cafeteria/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/cafeteria/internal/infrastructure/outbox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (s *memSink) Name() string { return "mem" }
func (s *memSink) Close() error { return nil }

func (s *memSink) Send(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *memSink) sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

func paidEvent() domorder.PaidEvent {
	return domorder.PaidEvent{
		OrderID:     "o1",
		CustomerID:  "c1",
		Total:       decimal.RequireFromString("12138.00"),
		PaymentKind: "cash",
		Items: []domorder.PaidItem{
			{ProductID: "BEB001", Name: "Café Americano", Kind: catalog.KindBeverage, Quantity: 2},
			{ProductID: "SNK001", Name: "Empanada", Kind: catalog.KindFood, Quantity: 1},
			{ProductID: "BEB007", Name: "Gaseosa", Kind: catalog.KindBeverage, Quantity: 1},
		},
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSingleKeysByAggregate(t *testing.T) {
	msgs, err := Single(catalog.StockLowEvent{ProductID: "PST002", Stock: 3, Threshold: 5})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "PST002", msgs[0].Key)
	assert.Equal(t, "catalog.stock_low", msgs[0].Event)
	assert.Empty(t, msgs[0].RoutingKey)

	var env Envelope
	require.NoError(t, json.Unmarshal(msgs[0].Body, &env))
	assert.Equal(t, msgs[0].ID, env.ID)
	assert.JSONEq(t, `{"product_id":"PST002","name":"","stock":3,"threshold":5,"occurred_at":"0001-01-01T00:00:00Z"}`, string(env.Payload))
}

func TestKitchenStationsSplitsByKind(t *testing.T) {
	msgs, err := KitchenStations(paidEvent())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "kitchen.beverage", msgs[0].RoutingKey)
	assert.Equal(t, "kitchen.food", msgs[1].RoutingKey)

	var env struct {
		Payload domorder.PaidEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msgs[0].Body, &env))
	assert.Len(t, env.Payload.Items, 2)
	assert.Equal(t, "o1", env.Payload.OrderID)

	none, err := KitchenStations(catalog.StockLowEvent{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRelayForwardsAndCounts(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	counters, histograms := prometrics.Standard(prometrics.New(reg, "", ""))
	tel := obsprovider.New(nil, nil, counters, histograms)

	bus := outbox.NewBus(nil)
	bus.Start(ctx)
	defer bus.Stop(ctx)

	ok := &memSink{}
	New(ok, AllEvents, nil, tel).Start(bus)

	require.NoError(t, bus.Publish(ctx, paidEvent()))
	require.NoError(t, bus.Publish(ctx, domorder.CancelledEvent{OrderID: "o2"}))

	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Flush(flushCtx))

	sent := ok.sent()
	require.Len(t, sent, 2)
	keys := []string{sent[0].Key, sent[1].Key}
	assert.ElementsMatch(t, []string{"o1", "o2"}, keys)

	n, err := testutil.GatherAndCount(reg, "events_relayed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRelayReportsSinkFailure(t *testing.T) {
	sink := &memSink{err: errors.New("broker down")}
	r := New(sink, AllEvents, KitchenStations, nil)

	err := r.handle(context.Background(), paidEvent())
	assert.ErrorContains(t, err, "broker down")
	assert.Empty(t, sink.sent())
}
