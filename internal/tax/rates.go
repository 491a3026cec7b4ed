// Package tax computes line taxes from basis-point rates per tax class.
package tax

import (
	"github.com/shopspring/decimal"
)

var tenThousand = decimal.NewFromInt(10000)

// Engine computes the tax owed on a subtotal.
type Engine interface {
	ComputeTax(subtotal decimal.Decimal, taxClass string) decimal.Decimal
}

// Rates is a basis-point tax table. Classes without an entry use DefaultBPS.
type Rates struct {
	DefaultBPS int
	Classes    map[string]int
	// Inclusive means subtotals already contain tax.
	Inclusive bool
}

// ComputeTax returns the tax for subtotal under taxClass rounded to two decimals.
func (r Rates) ComputeTax(subtotal decimal.Decimal, taxClass string) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	bps := r.DefaultBPS
	if v, ok := r.Classes[taxClass]; ok {
		bps = v
	}
	if bps <= 0 {
		return decimal.Zero
	}
	rate := decimal.NewFromInt(int64(bps)).Div(tenThousand)
	if r.Inclusive {
		net := subtotal.Div(decimal.NewFromInt(1).Add(rate))
		return subtotal.Sub(net).Round(2)
	}
	return subtotal.Mul(rate).Round(2)
}
