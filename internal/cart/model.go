package cart

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-rolepricing/internal/pricing"
)

// ErrNotFound indicates the requested cart could not be located.
var ErrNotFound = errors.New("cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// Line is a priced cart line. OriginalPrice is the undiscounted price of the latest
// pricing pass and is never set to a discounted value. DiscountedPrice stays null
// unless a discount applies.
type Line struct {
	Key             string              `json:"key"`
	ProductID       int64               `json:"productId"`
	VariantID       int64               `json:"variantId,omitempty"`
	Name            string              `json:"name"`
	Qty             int                 `json:"qty"`
	TaxClass        string              `json:"taxClass,omitempty"`
	Price           decimal.Decimal     `json:"price"`
	OriginalPrice   decimal.NullDecimal `json:"originalPrice"`
	DiscountedPrice decimal.NullDecimal `json:"discountedPrice"`
	DiscountApplied bool                `json:"discountApplied"`
	DiscountRole    string              `json:"discountRole,omitempty"`
	DiscountPercent decimal.Decimal     `json:"discountPercent"`
}

// Base is the price discounts are computed from.
func (l Line) Base() decimal.Decimal {
	if l.OriginalPrice.Valid {
		return l.OriginalPrice.Decimal
	}
	return l.Price
}

func (l *Line) clearDiscount() {
	l.DiscountedPrice = decimal.NullDecimal{}
	l.DiscountApplied = false
	l.DiscountRole = ""
	l.DiscountPercent = decimal.Zero
}

// Cart is a user's shopping cart.
type Cart struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Lines     []Line          `json:"lines"`
	Totals    pricing.Summary `json:"totals"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Line returns the line with key.
func (c *Cart) Line(key string) (*Line, bool) {
	for i := range c.Lines {
		if c.Lines[i].Key == key {
			return &c.Lines[i], true
		}
	}
	return nil, false
}

// DiscountInfo summarises the discount carried by one line.
type DiscountInfo struct {
	Key             string          `json:"key"`
	HasDiscount     bool            `json:"hasDiscount"`
	OriginalPrice   decimal.Decimal `json:"originalPrice"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	Percentage      decimal.Decimal `json:"percentage"`
	Role            string          `json:"role,omitempty"`
}

// Breakdown lists per-line discounts and their quantity-weighted total.
type Breakdown struct {
	Lines         []DiscountInfo  `json:"lines"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
}

// LineDiscount describes the discount on l. Lines without a discount report their
// current price on both sides.
func LineDiscount(l Line) DiscountInfo {
	info := DiscountInfo{
		Key:             l.Key,
		OriginalPrice:   l.Base(),
		DiscountedPrice: l.Price,
		DiscountAmount:  decimal.Zero,
		Percentage:      decimal.Zero,
	}
	if !l.DiscountApplied || !l.DiscountedPrice.Valid {
		info.OriginalPrice = l.Price
		return info
	}
	info.HasDiscount = true
	info.DiscountedPrice = l.DiscountedPrice.Decimal
	info.DiscountAmount = pricing.Round2(info.OriginalPrice.Sub(info.DiscountedPrice))
	info.Percentage = pricing.PercentOff(info.OriginalPrice, info.DiscountedPrice)
	info.Role = l.DiscountRole
	return info
}

// BreakdownOf returns the discount breakdown for c.
func BreakdownOf(c Cart) Breakdown {
	out := Breakdown{Lines: make([]DiscountInfo, 0, len(c.Lines)), TotalDiscount: decimal.Zero}
	for _, l := range c.Lines {
		info := LineDiscount(l)
		out.Lines = append(out.Lines, info)
		if info.HasDiscount && l.Qty > 0 {
			out.TotalDiscount = out.TotalDiscount.Add(info.DiscountAmount.Mul(decimal.NewFromInt(int64(l.Qty))))
		}
	}
	out.TotalDiscount = pricing.Round2(out.TotalDiscount)
	return out
}

// TotalDiscount is the quantity-weighted discount across c.
func TotalDiscount(c Cart) decimal.Decimal {
	return BreakdownOf(c).TotalDiscount
}
