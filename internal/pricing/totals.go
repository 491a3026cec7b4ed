package pricing

import "github.com/shopspring/decimal"

// Line describes a priced line used for order totals.
type Line struct {
	Qty       int
	Original  decimal.Decimal
	UnitPrice decimal.Decimal
	Tax       decimal.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Summarize totals the provided lines. When pricesIncludeTax is set the tax is
// reported but not added on top of the subtotal.
func Summarize(lines []Line, pricesIncludeTax bool) Summary {
	subtotal := decimal.Zero
	discount := decimal.Zero
	tax := decimal.Zero
	for _, ln := range lines {
		if ln.Qty <= 0 {
			continue
		}
		qty := decimal.NewFromInt(int64(ln.Qty))
		subtotal = subtotal.Add(ln.UnitPrice.Mul(qty))
		if ln.Original.GreaterThan(ln.UnitPrice) {
			discount = discount.Add(ln.Original.Sub(ln.UnitPrice).Mul(qty))
		}
		tax = tax.Add(ln.Tax)
	}
	total := subtotal
	if !pricesIncludeTax {
		total = total.Add(tax)
	}
	return Summary{
		Subtotal: Round2(subtotal),
		Discount: Round2(discount),
		Tax:      Round2(tax),
		Total:    Round2(total),
	}
}
