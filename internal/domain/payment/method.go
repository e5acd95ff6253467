package payment

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindCash    Kind = "cash"
	KindCard    Kind = "card"
	KindVoucher Kind = "voucher"
)

const (
	cardNumberLength     = 16
	declinedCardPrefix   = "0000"
	invalidVoucherPrefix = "INVALID"
)

var voucherDiscountRate = decimal.RequireFromString("0.10")

// VoucherDiscountRate is shown on voucher receipts. It does not change the amount settled.
func VoucherDiscountRate() decimal.Decimal { return voucherDiscountRate }

// Method is a single settlement attempt. Exactly one of the per-kind field groups is populated.
// Accept is the only decision point; once it returns (true or false) the method is spent.
type Method struct {
	mu sync.Mutex

	kind Kind

	// cash
	tendered decimal.Decimal
	change   decimal.Decimal

	// card
	cardNumber string
	holder     string

	// voucher
	code       string
	customerID string
	discount   decimal.Decimal

	processedAt time.Time
	spent       bool
	now         func() time.Time
}

func NewCash(tendered decimal.Decimal) (*Method, error) {
	if !tendered.IsPositive() {
		return nil, errs.Validation("tendered amount must be greater than zero")
	}
	return &Method{kind: KindCash, tendered: tendered, now: time.Now}, nil
}

func NewCard(number, holder string) (*Method, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, errs.Validation("card number is required")
	}
	if len(number) != cardNumberLength || !isDigits(number) {
		return nil, errs.Validation("card number must be 16 digits")
	}
	if strings.TrimSpace(holder) == "" {
		return nil, errs.Validation("card holder is required")
	}
	return &Method{kind: KindCard, cardNumber: number, holder: holder, now: time.Now}, nil
}

func NewVoucher(code, customerID string) (*Method, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errs.Validation("voucher code is required")
	}
	if strings.TrimSpace(customerID) == "" {
		return nil, errs.Validation("voucher customer id is required")
	}
	return &Method{kind: KindVoucher, code: code, customerID: customerID, now: time.Now}, nil
}

func (m *Method) Kind() Kind { return m.kind }

// Accept decides settlement of amount. It never retries; a spent method always returns false.
func (m *Method) Accept(amount decimal.Decimal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.spent {
		return false
	}
	m.spent = true

	switch m.kind {
	case KindCash:
		if m.tendered.LessThan(amount) {
			return false
		}
		m.change = m.tendered.Sub(amount)
	case KindCard:
		if strings.HasPrefix(m.cardNumber, declinedCardPrefix) {
			return false
		}
	case KindVoucher:
		// The discount is computed for the receipt only; the full amount is still what gets settled.
		m.discount = amount.Mul(voucherDiscountRate)
		if strings.HasPrefix(m.code, invalidVoucherPrefix) {
			return false
		}
	default:
		return false
	}

	m.processedAt = m.now().UTC()
	return true
}

// Receipt renders the human readable settlement summary.
func (m *Method) Receipt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record().Receipt()
}

// Record returns the immutable snapshot attached to an order after a successful Accept.
func (m *Method) Record() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record()
}

func (m *Method) record() Record {
	r := Record{Kind: m.kind, ProcessedAt: m.processedAt}
	switch m.kind {
	case KindCash:
		r.Cash = &CashDetails{Tendered: m.tendered, Change: m.change}
	case KindCard:
		r.Card = &CardDetails{MaskedNumber: MaskCardNumber(m.cardNumber), Holder: m.holder}
	case KindVoucher:
		r.Voucher = &VoucherDetails{Code: m.code, CustomerID: m.customerID, DiscountRate: voucherDiscountRate, Discount: m.discount}
	}
	return r
}

// MaskCardNumber hides all but the last four digits.
func MaskCardNumber(number string) string {
	if len(number) < 4 {
		return "****-****-****-****"
	}
	return "****-****-****-" + number[len(number)-4:]
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// New builds a method from loosely typed input, as received by transport adapters.
func New(kind Kind, p Params) (*Method, error) {
	switch kind {
	case KindCash:
		return NewCash(p.Tendered)
	case KindCard:
		return NewCard(p.CardNumber, p.Holder)
	case KindVoucher:
		return NewVoucher(p.VoucherCode, p.CustomerID)
	default:
		return nil, errs.Validation(fmt.Sprintf("unknown payment method %q", kind))
	}
}

type Params struct {
	Tendered    decimal.Decimal
	CardNumber  string
	Holder      string
	VoucherCode string
	CustomerID  string
}
