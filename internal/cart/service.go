package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-rolepricing/internal/catalog"
	"github.com/noah-isme/toko-rolepricing/internal/hooks"
	"github.com/noah-isme/toko-rolepricing/internal/lock"
	"github.com/noah-isme/toko-rolepricing/internal/obs"
	"github.com/noah-isme/toko-rolepricing/internal/pricing"
	"github.com/noah-isme/toko-rolepricing/internal/tax"
)

// HandlerDiscounts is the id of the role discount handler on the before-totals chain.
const HandlerDiscounts = "rolepricing.cart.before_totals"

// ProductReader loads catalog products.
type ProductReader interface {
	Product(ctx context.Context, id int64) (catalog.Product, error)
}

// Discounter resolves the role discount for the user on ctx.
type Discounter interface {
	Discount(ctx context.Context, point string, productID int64) pricing.Resolution
}

// Service encapsulates cart domain operations.
type Service struct {
	Store            Store
	Products         ProductReader
	Discounts        Discounter
	Chain            *hooks.Chain[*Cart]
	Tax              tax.Engine
	PricesIncludeTax bool
	Locker           *lock.Locker
	LockTTL          time.Duration
	Logger           zerolog.Logger
	Now              func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// totalsFrame marks a cart whose totals are being calculated further up the call chain.
type totalsFrame struct {
	cartID string
	parent *totalsFrame
}

type totalsKey struct{}

func calculating(ctx context.Context, cartID string) bool {
	f, _ := ctx.Value(totalsKey{}).(*totalsFrame)
	for ; f != nil; f = f.parent {
		if f.cartID == cartID {
			return true
		}
	}
	return false
}

func enterTotals(ctx context.Context, cartID string) context.Context {
	parent, _ := ctx.Value(totalsKey{}).(*totalsFrame)
	return context.WithValue(ctx, totalsKey{}, &totalsFrame{cartID: cartID, parent: parent})
}

// CalculateTotals runs the before-totals chain over c and then sums its lines.
// A nested call for the same cart on the same context only sums, so handlers may
// ask for totals without triggering another pricing pass.
func (s *Service) CalculateTotals(ctx context.Context, c *Cart) {
	if c == nil {
		return
	}
	if calculating(ctx, c.ID) {
		s.Logger.Debug().Str("cart_id", c.ID).Msg("nested totals calculation, pricing pass skipped")
		obs.CountCartRecalculation("reentrant")
	} else if s.Chain != nil {
		ctx = enterTotals(ctx, c.ID)
		s.restoreListPrices(ctx, c)
		if out := s.Chain.Run(ctx, c); out != nil && out != c {
			*c = *out
		}
		obs.CountCartRecalculation("calculated")
	}
	c.Totals = s.summarize(c)
}

func (s *Service) summarize(c *Cart) pricing.Summary {
	lines := make([]pricing.Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		pl := pricing.Line{Qty: l.Qty, Original: l.Base(), UnitPrice: l.Price, Tax: decimal.Zero}
		if s.Tax != nil && l.Qty > 0 {
			pl.Tax = s.Tax.ComputeTax(l.Price.Mul(decimal.NewFromInt(int64(l.Qty))), l.TaxClass)
		}
		lines = append(lines, pl)
	}
	return pricing.Summarize(lines, s.PricesIncludeTax)
}

// restoreListPrices puts every line back on its current undiscounted price so the
// handlers on the chain start each pass from the catalog rather than from the
// previous pass's output.
func (s *Service) restoreListPrices(ctx context.Context, c *Cart) {
	for i := range c.Lines {
		l := &c.Lines[i]
		switch {
		case s.Products != nil:
			id := l.ProductID
			if l.VariantID != 0 {
				id = l.VariantID
			}
			p, err := s.Products.Product(ctx, id)
			if err == nil {
				l.Price = p.Price
				break
			}
			s.Logger.Warn().Err(err).Int64("product_id", id).Msg("cart line price refresh failed")
			if l.OriginalPrice.Valid {
				l.Price = l.OriginalPrice.Decimal
			}
		case l.OriginalPrice.Valid:
			l.Price = l.OriginalPrice.Decimal
		}
		l.clearDiscount()
	}
}

// ApplyDiscounts is the role pricing handler for the before-totals chain. The price a
// line carries when the handler runs is its undiscounted price for this pass, possibly
// already replaced by an earlier handler. It becomes the line's original price and the
// discount is applied on top of it.
func (s *Service) ApplyDiscounts(ctx context.Context, c *Cart) *Cart {
	if c == nil {
		return c
	}
	for i := range c.Lines {
		s.priceLine(ctx, &c.Lines[i])
	}
	return c
}

func (s *Service) priceLine(ctx context.Context, l *Line) {
	base := l.Price
	// A line still carrying our own discounted price was not repriced since the last pass.
	if l.DiscountApplied && l.DiscountedPrice.Valid && l.OriginalPrice.Valid && l.Price.Equal(l.DiscountedPrice.Decimal) {
		base = l.OriginalPrice.Decimal
	}
	l.OriginalPrice = decimal.NewNullDecimal(base)
	res := pricing.Resolution{Percent: decimal.Zero}
	if s.Discounts != nil && base.IsPositive() {
		res = s.Discounts.Discount(ctx, string(hooks.PointCartTotals), l.ProductID)
	}
	if !res.Discounted() {
		l.Price = base
		l.clearDiscount()
		return
	}
	discounted := pricing.ApplyDiscount(base, res.Percent)
	l.Price = discounted
	l.DiscountedPrice = decimal.NewNullDecimal(discounted)
	l.DiscountApplied = true
	l.DiscountRole = res.Role
	l.DiscountPercent = res.Percent
}

// RegisterDiscounts attaches ApplyDiscounts to the before-totals chain at priority.
func (s *Service) RegisterDiscounts(owner string, priority int) {
	if s.Chain == nil {
		return
	}
	s.Chain.Add(hooks.Handler[*Cart]{ID: HandlerDiscounts, Owner: owner, Priority: priority, Fn: s.ApplyDiscounts})
}

// ResetPricing restores every line to its original price and clears the priced fields.
func ResetPricing(c *Cart) {
	for i := range c.Lines {
		l := &c.Lines[i]
		if l.OriginalPrice.Valid {
			l.Price = l.OriginalPrice.Decimal
		}
		l.OriginalPrice = decimal.NullDecimal{}
		l.clearDiscount()
	}
}

// Get returns the cart owned by userID. Unknown ids yield an empty cart.
func (s *Service) Get(ctx context.Context, id, userID string) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	if _, err := uuid.Parse(id); err != nil {
		return Cart{}, fmt.Errorf("%w: cart id must be a uuid", ErrInvalidInput)
	}
	c, err := s.Store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Cart{ID: id, UserID: userID, Lines: []Line{}}, nil
	}
	if err != nil {
		return Cart{}, err
	}
	if c.UserID != userID {
		return Cart{}, ErrNotFound
	}
	return c, nil
}

// Calculate recalculates and persists the cart.
func (s *Service) Calculate(ctx context.Context, id, userID string) (Cart, error) {
	return s.mutate(ctx, id, userID, func(ctx context.Context, c *Cart) error {
		s.CalculateTotals(ctx, c)
		return nil
	})
}

// AddLine adds qty of productID to the cart and recalculates it. Variable products
// must be added through one of their variations.
func (s *Service) AddLine(ctx context.Context, id, userID string, productID int64, qty int) (Cart, error) {
	if qty <= 0 {
		return Cart{}, fmt.Errorf("%w: qty must be positive", ErrInvalidInput)
	}
	if s.Products == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	p, err := s.Products.Product(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Cart{}, fmt.Errorf("%w: unknown product %d", ErrInvalidInput, productID)
		}
		return Cart{}, err
	}
	if p.Kind == catalog.KindVariable {
		return Cart{}, fmt.Errorf("%w: choose a variation of product %d", ErrInvalidInput, productID)
	}
	if !p.Purchasable {
		return Cart{}, fmt.Errorf("%w: product %d is not purchasable", ErrInvalidInput, productID)
	}
	return s.mutate(ctx, id, userID, func(ctx context.Context, c *Cart) error {
		line := Line{
			ProductID:       p.PricingID(),
			Name:            p.Name,
			Qty:             qty,
			TaxClass:        p.TaxClass,
			Price:           p.Price,
			DiscountPercent: decimal.Zero,
		}
		if p.Kind == catalog.KindVariation {
			line.VariantID = p.ID
		}
		line.Key = fmt.Sprintf("%d:%d", line.ProductID, line.VariantID)
		if existing, ok := c.Line(line.Key); ok {
			existing.Qty += qty
		} else {
			c.Lines = append(c.Lines, line)
		}
		s.CalculateTotals(ctx, c)
		return nil
	})
}

// Reset clears all role pricing from the cart and persists it with plain totals.
func (s *Service) Reset(ctx context.Context, id, userID string) (Cart, error) {
	return s.mutate(ctx, id, userID, func(_ context.Context, c *Cart) error {
		ResetPricing(c)
		c.Totals = s.summarize(c)
		return nil
	})
}

// DiscountBreakdown returns the discount breakdown of the stored cart.
func (s *Service) DiscountBreakdown(ctx context.Context, id, userID string) (Breakdown, error) {
	c, err := s.Get(ctx, id, userID)
	if err != nil {
		return Breakdown{}, err
	}
	return BreakdownOf(c), nil
}

// Clear deletes the cart.
func (s *Service) Clear(ctx context.Context, id string) error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return s.Store.Delete(ctx, id)
}

func (s *Service) mutate(ctx context.Context, id, userID string, fn func(context.Context, *Cart) error) (Cart, error) {
	var out Cart
	run := func(ctx context.Context) error {
		c, err := s.Get(ctx, id, userID)
		if err != nil {
			return err
		}
		if err := fn(ctx, &c); err != nil {
			return err
		}
		c.UpdatedAt = s.now().UTC()
		if err := s.Store.Save(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	}
	var err error
	if s.Locker == nil {
		err = run(ctx)
	} else {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = 5 * time.Second
		}
		err = s.Locker.WithLock(ctx, "cart:"+id, ttl, run)
	}
	if err != nil {
		return Cart{}, err
	}
	return out, nil
}
