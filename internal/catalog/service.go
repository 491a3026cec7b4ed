package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-rolepricing/internal/hooks"
	"github.com/noah-isme/toko-rolepricing/internal/pricing"
)

// PriceQuote flows through the single-price chains.
type PriceQuote struct {
	Product Product
	Regular decimal.Decimal
	Price   decimal.Decimal
	Percent decimal.Decimal
}

// PriceRange flows through the variable-product chain.
type PriceRange struct {
	Product    Product
	RegularMin decimal.Decimal
	RegularMax decimal.Decimal
	Min        decimal.Decimal
	Max        decimal.Decimal
	Percent    decimal.Decimal
}

// Chains are the hook points a rendered price passes through.
type Chains struct {
	Price     *hooks.Chain[PriceQuote]
	Variation *hooks.Chain[PriceQuote]
	Variable  *hooks.Chain[PriceRange]
}

// NewChains creates empty chains for every catalog hook point.
func NewChains() Chains {
	return Chains{
		Price:     hooks.NewChain[PriceQuote](hooks.PointCatalogPrice),
		Variation: hooks.NewChain[PriceQuote](hooks.PointVariationPrice),
		Variable:  hooks.NewChain[PriceRange](hooks.PointVariablePrice),
	}
}

// Display is the price shown to the current visitor. Variable products show a range.
type Display struct {
	ProductID       int64            `json:"productId"`
	Kind            string           `json:"kind"`
	RegularPrice    decimal.Decimal  `json:"regularPrice"`
	Price           decimal.Decimal  `json:"price"`
	MinPrice        *decimal.Decimal `json:"minPrice,omitempty"`
	MaxPrice        *decimal.Decimal `json:"maxPrice,omitempty"`
	Discounted      bool             `json:"discounted"`
	DiscountPercent decimal.Decimal  `json:"discountPercent"`
}

// Service renders catalog prices. Rendering never writes anything back.
type Service struct {
	Reader Reader
	Chains Chains
}

// DisplayPrice renders the price of productID for the visitor on ctx.
func (s *Service) DisplayPrice(ctx context.Context, productID int64) (Display, error) {
	if s == nil || s.Reader == nil {
		return Display{}, errors.New("catalog service not configured")
	}
	p, err := s.Reader.Product(ctx, productID)
	if err != nil {
		return Display{}, fmt.Errorf("load product %d: %w", productID, err)
	}
	switch p.Kind {
	case KindVariable:
		return s.displayRange(ctx, p), nil
	case KindVariation:
		return displayQuote(p, s.Chains.Variation.Run(ctx, newQuote(p))), nil
	default:
		return displayQuote(p, s.Chains.Price.Run(ctx, newQuote(p))), nil
	}
}

func (s *Service) displayRange(ctx context.Context, p Product) Display {
	lo, hi := VariantRange(p.Variants)
	r := s.Chains.Variable.Run(ctx, PriceRange{
		Product:    p,
		RegularMin: lo,
		RegularMax: hi,
		Min:        lo,
		Max:        hi,
		Percent:    decimal.Zero,
	})
	minPrice, maxPrice := r.Min, r.Max
	return Display{
		ProductID:       p.ID,
		Kind:            p.Kind,
		RegularPrice:    r.RegularMin,
		Price:           r.Min,
		MinPrice:        &minPrice,
		MaxPrice:        &maxPrice,
		Discounted:      r.Min.LessThan(r.RegularMin) || r.Max.LessThan(r.RegularMax),
		DiscountPercent: r.Percent,
	}
}

// VariantRange returns the lowest and highest price among purchasable variants with a
// positive price. An empty family yields 0, 0.
func VariantRange(variants []Product) (decimal.Decimal, decimal.Decimal) {
	lo, hi := decimal.Zero, decimal.Zero
	seen := false
	for _, v := range variants {
		if !v.Purchasable || !v.Price.IsPositive() {
			continue
		}
		if !seen || v.Price.LessThan(lo) {
			lo = v.Price
		}
		if !seen || v.Price.GreaterThan(hi) {
			hi = v.Price
		}
		seen = true
	}
	return lo, hi
}

func newQuote(p Product) PriceQuote {
	return PriceQuote{Product: p, Regular: p.Price, Price: p.Price, Percent: decimal.Zero}
}

func displayQuote(p Product, q PriceQuote) Display {
	return Display{
		ProductID:       p.ID,
		Kind:            p.Kind,
		RegularPrice:    q.Regular,
		Price:           q.Price,
		Discounted:      q.Price.LessThan(q.Regular),
		DiscountPercent: q.Percent,
	}
}

// Discounter resolves the role discount for the visitor on ctx.
type Discounter interface {
	Discount(ctx context.Context, point string, productID int64) pricing.Resolution
}

// DiscountFilter applies role discounts on top of whatever earlier handlers produced.
type DiscountFilter struct {
	Discounts Discounter
}

// Price discounts a simple product price.
func (f DiscountFilter) Price(ctx context.Context, q PriceQuote) PriceQuote {
	return f.quote(ctx, hooks.PointCatalogPrice, q)
}

// Variation discounts a single variation price.
func (f DiscountFilter) Variation(ctx context.Context, q PriceQuote) PriceQuote {
	return f.quote(ctx, hooks.PointVariationPrice, q)
}

func (f DiscountFilter) quote(ctx context.Context, point hooks.Point, q PriceQuote) PriceQuote {
	if f.Discounts == nil || !q.Price.IsPositive() {
		return q
	}
	res := f.Discounts.Discount(ctx, string(point), q.Product.PricingID())
	if !res.Discounted() {
		return q
	}
	q.Price = pricing.ApplyDiscount(q.Price, res.Percent)
	q.Percent = res.Percent
	return q
}

// Range discounts both ends of a variable product's range. Variations share their
// parent's categories, so one resolution covers the whole family.
func (f DiscountFilter) Range(ctx context.Context, r PriceRange) PriceRange {
	if f.Discounts == nil || !r.Max.IsPositive() {
		return r
	}
	res := f.Discounts.Discount(ctx, string(hooks.PointVariablePrice), r.Product.PricingID())
	if !res.Discounted() {
		return r
	}
	r.Min = pricing.ApplyDiscount(r.Min, res.Percent)
	r.Max = pricing.ApplyDiscount(r.Max, res.Percent)
	r.Percent = res.Percent
	return r
}

// Handler IDs registered by role pricing.
const (
	HandlerPrice     = "rolepricing.catalog.price"
	HandlerVariation = "rolepricing.catalog.variation_price"
	HandlerVariable  = "rolepricing.catalog.variable_price"
)

// Register attaches the filter to every catalog chain at priority. Repeated calls
// replace the existing handlers.
func (f DiscountFilter) Register(chains Chains, owner string, priority int) {
	chains.Price.Add(hooks.Handler[PriceQuote]{ID: HandlerPrice, Owner: owner, Priority: priority, Fn: f.Price})
	chains.Variation.Add(hooks.Handler[PriceQuote]{ID: HandlerVariation, Owner: owner, Priority: priority, Fn: f.Variation})
	chains.Variable.Add(hooks.Handler[PriceRange]{ID: HandlerVariable, Owner: owner, Priority: priority, Fn: f.Range})
}
