package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const receiptTimeLayout = "2006-01-02 15:04:05"

type CashDetails struct {
	Tendered decimal.Decimal `json:"tendered"`
	Change   decimal.Decimal `json:"change"`
}

type CardDetails struct {
	MaskedNumber string `json:"masked_number"`
	Holder       string `json:"holder"`
}

type VoucherDetails struct {
	Code         string          `json:"code"`
	CustomerID   string          `json:"customer_id"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
	Discount     decimal.Decimal `json:"discount"`
}

// Record is the settled payment attached to an order. Values are copied, never shared.
type Record struct {
	Kind        Kind            `json:"kind"`
	ProcessedAt time.Time       `json:"processed_at"`
	Cash        *CashDetails    `json:"cash,omitempty"`
	Card        *CardDetails    `json:"card,omitempty"`
	Voucher     *VoucherDetails `json:"voucher,omitempty"`
}

func (r Record) Clone() Record {
	c := r
	if r.Cash != nil {
		v := *r.Cash
		c.Cash = &v
	}
	if r.Card != nil {
		v := *r.Card
		c.Card = &v
	}
	if r.Voucher != nil {
		v := *r.Voucher
		c.Voucher = &v
	}
	return c
}

func (r Record) Receipt() string {
	var b strings.Builder
	date := r.ProcessedAt.Format(receiptTimeLayout)
	switch r.Kind {
	case KindCash:
		fmt.Fprintf(&b, "CASH PAYMENT\nTendered: $%s\nChange: $%s\nDate: %s",
			r.Cash.Tendered.StringFixed(2), r.Cash.Change.StringFixed(2), date)
	case KindCard:
		fmt.Fprintf(&b, "CARD PAYMENT\nCard: %s\nHolder: %s\nDate: %s",
			r.Card.MaskedNumber, r.Card.Holder, date)
	case KindVoucher:
		fmt.Fprintf(&b, "STUDENT VOUCHER PAYMENT\nCode: %s\nDiscount: %s%%\nDate: %s",
			r.Voucher.Code, r.Voucher.DiscountRate.Mul(decimal.NewFromInt(100)).String(), date)
	}
	return b.String()
}
