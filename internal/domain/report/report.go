// Package report holds the read models produced by sales aggregation.
package report

import (
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/payment"
	"github.com/shopspring/decimal"
)

type ProductSales struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
	Rank      int             `json:"rank,omitempty"`
}

type PaymentMethodSales struct {
	Kind         payment.Kind    `json:"kind"`
	Transactions int             `json:"transactions"`
	Amount       decimal.Decimal `json:"amount"`
}

type Sales struct {
	From           time.Time            `json:"from"`
	To             *time.Time           `json:"to,omitempty"`
	Orders         int                  `json:"orders"`
	Revenue        decimal.Decimal      `json:"revenue"`
	Products       []ProductSales       `json:"products"`
	PaymentMethods []PaymentMethodSales `json:"payment_methods"`
}

// AverageTicket is revenue per order, zero when there are no orders.
func (s Sales) AverageTicket() decimal.Decimal {
	if s.Orders == 0 {
		return decimal.Zero
	}
	return s.Revenue.Div(decimal.NewFromInt(int64(s.Orders)))
}
