package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-rolepricing/internal/cart"
	"github.com/noah-isme/toko-rolepricing/internal/events"
	"github.com/noah-isme/toko-rolepricing/internal/order"
	"github.com/noah-isme/toko-rolepricing/internal/pricing"
	"github.com/noah-isme/toko-rolepricing/internal/tax"
)

// ErrEmptyCart is returned when checking out a cart without lines.
var ErrEmptyCart = errors.New("cart is empty")

// Input is the checkout request body.
type Input struct {
	CartID string `json:"cartId"`
}

// Carts is the cart behaviour checkout relies on.
type Carts interface {
	Get(ctx context.Context, id, userID string) (cart.Cart, error)
	CalculateTotals(ctx context.Context, c *cart.Cart)
	Clear(ctx context.Context, id string) error
}

// Service turns a cart into an order. The cart is repriced for the session on ctx
// and the resolved prices are stamped on the order lines.
type Service struct {
	Carts            Carts
	Orders           order.Repository
	Tax              tax.Engine
	PricesIncludeTax bool
	Events           order.Emitter
	Reconcile        order.Enqueuer
	Logger           zerolog.Logger
	Now              func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create places an order for userID from the cart named in in.
func (s *Service) Create(ctx context.Context, userID string, in Input) (order.Order, error) {
	if s == nil || s.Carts == nil || s.Orders == nil {
		return order.Order{}, errors.New("checkout service not configured")
	}
	if userID == "" {
		return order.Order{}, errors.New("user is required for checkout")
	}
	if in.CartID == "" {
		return order.Order{}, fmt.Errorf("%w: cartId is required", cart.ErrInvalidInput)
	}
	c, err := s.Carts.Get(ctx, in.CartID, userID)
	if err != nil {
		return order.Order{}, err
	}
	if len(c.Lines) == 0 {
		return order.Order{}, ErrEmptyCart
	}
	s.Carts.CalculateTotals(ctx, &c)

	now := s.now().UTC()
	o := order.Order{
		ID:        uuid.New(),
		UserID:    userID,
		CartID:    c.ID,
		Status:    order.StatusPending,
		Lines:     make([]order.Line, 0, len(c.Lines)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, l := range c.Lines {
		if l.Qty <= 0 {
			continue
		}
		o.Lines = append(o.Lines, s.orderLine(l))
	}
	if len(o.Lines) == 0 {
		return order.Order{}, ErrEmptyCart
	}
	o.SetTotals(order.TotalsOf(o.Lines, s.PricesIncludeTax))

	o, err = s.Orders.Create(ctx, o)
	if err != nil {
		return order.Order{}, fmt.Errorf("persist order: %w", err)
	}
	discounted := order.HasDiscounts(o)
	if s.Events != nil {
		payload := map[string]any{
			"userId":        userID,
			"total":         o.Total,
			"discountTotal": o.DiscountTotal,
			"hasDiscounts":  discounted,
		}
		if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, o.ID, payload); err != nil {
			s.Logger.Error().Err(err).Str("order_id", o.ID.String()).Msg("emit order created")
		}
	}
	if discounted && s.Reconcile != nil {
		if err := s.Reconcile.EnqueueReconcile(ctx, o.ID, order.TriggerCheckout); err != nil {
			s.Logger.Error().Err(err).Str("order_id", o.ID.String()).Msg("schedule reconciliation")
		}
	}
	if err := s.Carts.Clear(ctx, c.ID); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", c.ID).Msg("clear cart after checkout")
	}
	return o, nil
}

// orderLine copies the resolved cart price onto an order line and taxes the
// discounted subtotal.
func (s *Service) orderLine(l cart.Line) order.Line {
	total := pricing.Round2(l.Price.Mul(decimal.NewFromInt(int64(l.Qty))))
	line := order.Line{
		ProductID: l.ProductID,
		VariantID: l.VariantID,
		Name:      l.Name,
		Qty:       l.Qty,
		TaxClass:  l.TaxClass,
		Subtotal:  total,
		Total:     total,
		Tax:       decimal.Zero,
		Meta: order.LineMeta{
			OriginalPrice:   l.OriginalPrice,
			DiscountedPrice: l.DiscountedPrice,
			DiscountApplied: l.DiscountApplied,
			DiscountRole:    l.DiscountRole,
		},
	}
	if !line.Meta.OriginalPrice.Valid {
		line.Meta.OriginalPrice = decimal.NewNullDecimal(l.Price)
	}
	if s.Tax != nil {
		line.Tax = s.Tax.ComputeTax(total, l.TaxClass)
	}
	return line
}
