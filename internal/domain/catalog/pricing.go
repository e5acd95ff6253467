package catalog

import (
	"github.com/Zhima-Mochi/cafeteria/internal/domain/errs"
	"github.com/shopspring/decimal"
)

var (
	// TaxMultiplier is the flat 19% VAT applied to every catalog price.
	TaxMultiplier = decimal.RequireFromString("1.19")
	taxRate       = decimal.RequireFromString("0.19")
	hundred       = decimal.NewFromInt(100)
)

func FinalPrice(base decimal.Decimal) decimal.Decimal {
	return base.Mul(TaxMultiplier)
}

// TaxPortion extracts the VAT already embedded in a tax-inclusive total.
func TaxPortion(total decimal.Decimal) decimal.Decimal {
	return total.Mul(taxRate).Div(TaxMultiplier)
}

// ApplyDiscount reduces amount by percent, which must lie in [0, 100].
func ApplyDiscount(amount, percent decimal.Decimal) (decimal.Decimal, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return decimal.Zero, errs.Validation("discount percent must be between 0 and 100")
	}
	return amount.Mul(decimal.NewFromInt(1).Sub(percent.Div(hundred))), nil
}
