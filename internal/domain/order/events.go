package order

import (
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// StatusChangedEvent is emitted after every persisted state transition.
type StatusChangedEvent struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StatusChangedEvent) EventName() string { return "order.status_changed" }

func NewStatusChangedEvent(o *Order, from Status) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		From:       from,
		To:         o.Status,
		OccurredAt: time.Now().UTC(),
	}
}

type PaidItem struct {
	ProductID string       `json:"product_id"`
	Name      string       `json:"name"`
	Kind      catalog.Kind `json:"kind"`
	Quantity  int          `json:"quantity"`
}

// PaidEvent tells the kitchen an order is settled and can be prepared.
type PaidEvent struct {
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	Total       decimal.Decimal `json:"total"`
	PaymentKind payment.Kind    `json:"payment_kind"`
	Items       []PaidItem      `json:"items"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (PaidEvent) EventName() string { return "order.paid" }

func NewPaidEvent(o *Order) PaidEvent {
	items := make([]PaidItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, PaidItem{ProductID: it.ProductID, Name: it.ProductName, Kind: it.Kind, Quantity: it.Quantity})
	}
	var kind payment.Kind
	if o.Payment != nil {
		kind = o.Payment.Kind
	}
	return PaidEvent{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		Total:       o.Total(),
		PaymentKind: kind,
		Items:       items,
		OccurredAt:  time.Now().UTC(),
	}
}

type CancelledEvent struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	From       Status    `json:"from"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (CancelledEvent) EventName() string { return "order.cancelled" }

func NewCancelledEvent(o *Order, from Status) CancelledEvent {
	return CancelledEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		From:       from,
		OccurredAt: time.Now().UTC(),
	}
}
