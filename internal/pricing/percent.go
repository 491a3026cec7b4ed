package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round2 rounds a monetary value or percentage to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ClampPercent bounds a percentage to [0,100] and rounds it to two decimals.
func ClampPercent(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return Round2(d)
}

// ApplyDiscount returns price reduced by pct percent, clamped at zero.
// A zero percentage returns price untouched.
func ApplyDiscount(price, pct decimal.Decimal) decimal.Decimal {
	pct = ClampPercent(pct)
	if pct.IsZero() || !price.IsPositive() {
		return price
	}
	discounted := Round2(price.Sub(price.Mul(pct).Div(hundred)))
	if discounted.IsNegative() {
		return decimal.Zero
	}
	return discounted
}

// PercentOff reports how many percent discounted is below original, rounded to two decimals.
func PercentOff(original, discounted decimal.Decimal) decimal.Decimal {
	if !original.IsPositive() || !discounted.LessThan(original) {
		return decimal.Zero
	}
	return Round2(original.Sub(discounted).Div(original).Mul(hundred))
}

// WithinTolerance reports whether a and b differ by at most tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}
