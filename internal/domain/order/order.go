package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/catalog"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	"github.com/Zhima-Mochi/cafeteria/internal/domain/payment"
	"github.com/shopspring/decimal"
)

const entityOrder = "order"

type Status string

const (
	StatusPending          Status = "pending"
	StatusPaymentConfirmed Status = "payment_confirmed"
	StatusInPreparation    Status = "in_preparation"
	StatusReadyForPickup   Status = "ready_for_pickup"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := stateFor(st); !ok {
		return "", errs.Validation(fmt.Sprintf("unknown order status %q", s))
	}
	return st, nil
}

// LineItem is a value snapshot of a product at the moment it was first added.
type LineItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Kind        catalog.Kind    `json:"kind"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// PaymentMethod is the settlement capability the aggregate depends on.
type PaymentMethod interface {
	Accept(amount decimal.Decimal) bool
	Record() payment.Record
}

type Order struct {
	ID         string
	CustomerID string
	Status     Status
	Items      []LineItem
	Payment    *payment.Record
	CreatedAt  time.Time
	PaidAt     *time.Time
	UpdatedAt  time.Time

	state OrderState
}

func New(id, customerID string) (*Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errs.Validation("order id is required")
	}
	if strings.TrimSpace(customerID) == "" {
		return nil, errs.Validation("customer id is required")
	}
	now := time.Now().UTC()
	return &Order{
		ID:         id,
		CustomerID: customerID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		state:      pendingState{},
	}, nil
}

// Restore rebuilds an order loaded from a store.
func Restore(o Order) (*Order, error) {
	st, ok := stateFor(o.Status)
	if !ok {
		return nil, fmt.Errorf("order: restore %q: unknown status %q", o.ID, o.Status)
	}
	o.state = st
	c := o.Clone()
	return c, nil
}

func (o *Order) currentState() OrderState {
	if o.state == nil {
		st, ok := stateFor(o.Status)
		if !ok {
			st = cancelledState{}
		}
		o.state = st
	}
	return o.state
}

// Total is the sum of line subtotals. Tax is already inside every unit price.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Item returns the line for productID, if any.
func (o *Order) Item(productID string) (LineItem, bool) {
	for _, it := range o.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return LineItem{}, false
}

// AddItem merges qty into an existing line or appends a new one priced at the product's current final price.
func (o *Order) AddItem(p *catalog.Product, qty int) error {
	if err := o.requireModifiable(); err != nil {
		return err
	}
	if p == nil {
		return errs.Validation("product is required")
	}
	if qty <= 0 {
		return errs.Validation("quantity must be greater than zero")
	}
	if !p.Active {
		return &errs.InvalidStateError{Entity: "product", ID: p.ID, Current: "inactive", Required: "active"}
	}

	for i := range o.Items {
		if o.Items[i].ProductID == p.ID {
			o.Items[i].Quantity += qty
			o.touch()
			return nil
		}
	}
	o.Items = append(o.Items, LineItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		Kind:        p.Kind,
		Quantity:    qty,
		UnitPrice:   p.FinalPrice(),
	})
	o.touch()
	return nil
}

// RemoveItem drops the line for productID. A missing line is not an error.
func (o *Order) RemoveItem(productID string) error {
	if err := o.requireModifiable(); err != nil {
		return err
	}
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			o.touch()
			return nil
		}
	}
	return nil
}

// ConfirmPayment settles the order total through m and moves it to payment_confirmed.
func (o *Order) ConfirmPayment(m PaymentMethod) error {
	next, ok := o.currentState().OnPaymentConfirmed()
	if !ok {
		return o.invalidState(StatusPending)
	}
	if m == nil {
		return errs.Validation("payment method is required")
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("order %q: %w", o.ID, errs.ErrEmptyOrder)
	}
	if !m.Accept(o.Total()) {
		return &errs.PaymentRejectedError{OrderID: o.ID, Reason: "declined by payment method"}
	}

	rec := m.Record().Clone()
	paidAt := rec.ProcessedAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	o.Payment = &rec
	o.PaidAt = &paidAt
	o.setState(next)
	return nil
}

func (o *Order) StartPreparation() error {
	next, ok := o.currentState().OnPreparationStarted()
	if !ok {
		return o.invalidState(StatusPaymentConfirmed)
	}
	o.setState(next)
	return nil
}

func (o *Order) MarkReady() error {
	next, ok := o.currentState().OnReady()
	if !ok {
		return o.invalidState(StatusInPreparation)
	}
	o.setState(next)
	return nil
}

func (o *Order) Complete() error {
	next, ok := o.currentState().OnCompleted()
	if !ok {
		return o.invalidState(StatusReadyForPickup)
	}
	o.setState(next)
	return nil
}

func (o *Order) Cancel() error {
	next, ok := o.currentState().OnCancelled()
	if !ok {
		return &errs.InvalidStateError{Entity: entityOrder, ID: o.ID, Current: string(o.Status), Required: "not completed or cancelled"}
	}
	o.setState(next)
	return nil
}

func (o *Order) IsPending() bool {
	return o.currentState().Modifiable()
}

// Clone returns a deep copy. Stores hand out clones so callers never mutate shared state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	if o.Payment != nil {
		p := o.Payment.Clone()
		c.Payment = &p
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}

func (o *Order) requireModifiable() error {
	if !o.currentState().Modifiable() {
		return o.invalidState(StatusPending)
	}
	return nil
}

func (o *Order) invalidState(required Status) error {
	return &errs.InvalidStateError{Entity: entityOrder, ID: o.ID, Current: string(o.Status), Required: string(required)}
}

func (o *Order) setState(next OrderState) {
	o.state = next
	o.Status = next.Status()
	o.touch()
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
