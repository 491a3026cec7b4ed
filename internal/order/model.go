package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidStatus is returned for unknown statuses.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidTransition is returned when the order cannot move to the requested status.
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusOnHold     Status = "on-hold"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Critical statuses trigger reconciliation.
func (s Status) Critical() bool {
	return s == StatusProcessing || s == StatusCompleted
}

var statusRank = map[Status]int{
	StatusPending:    0,
	StatusFailed:     0,
	StatusOnHold:     1,
	StatusProcessing: 2,
	StatusCompleted:  3,
	StatusCancelled:  4,
	StatusRefunded:   4,
}

// CanTransition reports whether an order may move from one status to another.
// Orders move forward only; cancelled and refunded are terminal.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	switch from {
	case StatusCancelled, StatusRefunded:
		return false
	case StatusCompleted:
		return to == StatusRefunded
	}
	if to == StatusCancelled || to == StatusFailed {
		return from != StatusCompleted
	}
	return statusRank[to] > statusRank[from]
}

// LineMeta is the pricing record stamped on an order line at checkout.
type LineMeta struct {
	OriginalPrice   decimal.NullDecimal `json:"_original_price"`
	DiscountedPrice decimal.NullDecimal `json:"_discounted_price"`
	DiscountApplied bool                `json:"_discount_applied"`
	DiscountRole    string              `json:"_discount_role,omitempty"`
}

// Line is a persisted order line. Subtotal and Total exclude tax.
type Line struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"productId"`
	VariantID int64           `json:"variantId,omitempty"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	TaxClass  string          `json:"taxClass,omitempty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Total     decimal.Decimal `json:"total"`
	Tax       decimal.Decimal `json:"tax"`
	Meta      LineMeta        `json:"meta"`
}

// UnitPrice is the persisted per-unit price.
func (l Line) UnitPrice() decimal.Decimal {
	if l.Qty <= 0 {
		return l.Total
	}
	return l.Total.Div(decimal.NewFromInt(int64(l.Qty))).Round(2)
}

// Order is an immutable purchase record.
type Order struct {
	ID            uuid.UUID       `json:"id"`
	UserID        string          `json:"userId"`
	CartID        string          `json:"cartId,omitempty"`
	Status        Status          `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discountTotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Lines         []Line          `json:"lines"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// HasDiscounts reports whether any line carries a role discount.
func HasDiscounts(o Order) bool {
	for _, l := range o.Lines {
		if l.Meta.DiscountApplied {
			return true
		}
	}
	return false
}

// LineCorrection rewrites a line's persisted amounts.
type LineCorrection struct {
	LineID   int64
	Subtotal decimal.Decimal
	Total    decimal.Decimal
	Tax      decimal.Decimal
	Meta     LineMeta
}

// Repository persists orders.
type Repository interface {
	// Create stores the order and its lines atomically and returns them with ids assigned.
	Create(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	// SetStatus moves the order to status and returns the previous one.
	SetStatus(ctx context.Context, id uuid.UUID, status Status) (Status, error)
	// ApplyCorrections rewrites the given lines and the order totals atomically.
	ApplyCorrections(ctx context.Context, id uuid.UUID, lines []LineCorrection, totals Totals) error
}

// Totals are order-level amounts.
type Totals struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
}

// TotalsOf sums line amounts. Discounts are measured against the stamped original price.
func TotalsOf(lines []Line, pricesIncludeTax bool) Totals {
	t := Totals{Subtotal: decimal.Zero, DiscountTotal: decimal.Zero, Tax: decimal.Zero}
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.Total)
		t.Tax = t.Tax.Add(l.Tax)
		if l.Meta.OriginalPrice.Valid && l.Qty > 0 {
			full := l.Meta.OriginalPrice.Decimal.Mul(decimal.NewFromInt(int64(l.Qty)))
			if full.GreaterThan(l.Total) {
				t.DiscountTotal = t.DiscountTotal.Add(full.Sub(l.Total))
			}
		}
	}
	t.Subtotal = t.Subtotal.Round(2)
	t.Tax = t.Tax.Round(2)
	t.DiscountTotal = t.DiscountTotal.Round(2)
	t.Total = t.Subtotal
	if !pricesIncludeTax {
		t.Total = t.Total.Add(t.Tax)
	}
	return t
}

// SetTotals copies t onto o.
func (o *Order) SetTotals(t Totals) {
	o.Subtotal = t.Subtotal
	o.DiscountTotal = t.DiscountTotal
	o.Tax = t.Tax
	o.Total = t.Total
}
