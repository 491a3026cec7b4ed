// Package wholesale is the bundled wholesale price list. It registers on the same hook
// points as role pricing under its own owner tag and replaces prices for customers
// holding one of its wholesale roles.
package wholesale

import (
	"context"
	"slices"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-rolepricing/internal/cart"
	"github.com/noah-isme/toko-rolepricing/internal/catalog"
	"github.com/noah-isme/toko-rolepricing/internal/common"
	"github.com/noah-isme/toko-rolepricing/internal/hooks"
	"github.com/noah-isme/toko-rolepricing/internal/interop"
)

// DefaultPriority is where the extension registers unless configured otherwise.
const DefaultPriority = 10

// Handler ids registered by the extension.
const (
	HandlerPrice     = "wholesale.catalog.price"
	HandlerVariation = "wholesale.catalog.variation_price"
	HandlerVariable  = "wholesale.catalog.variable_price"
	HandlerCart      = "wholesale.cart.before_totals"
)

// PriceStore holds per-role wholesale prices.
type PriceStore interface {
	// Price returns the wholesale price of productID for role.
	Price(ctx context.Context, role string, productID int64) (decimal.Decimal, bool, error)
	// Roles lists every role with at least one price.
	Roles(ctx context.Context) ([]string, error)
}

// Extension applies wholesale prices on the catalog and cart chains.
type Extension struct {
	Prices PriceStore
	// Roles restricts the taxonomy. Empty means every role found in the store.
	Roles    []string
	Priority int
	Logger   zerolog.Logger
}

// WholesaleRoles reports the extension's role taxonomy.
func (e *Extension) WholesaleRoles(ctx context.Context) ([]string, error) {
	if len(e.Roles) > 0 {
		out := slices.Clone(e.Roles)
		sort.Strings(out)
		return out, nil
	}
	if e.Prices == nil {
		return nil, nil
	}
	roles, err := e.Prices.Roles(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(roles)
	return roles, nil
}

func (e *Extension) customerRoles(ctx context.Context) []string {
	user, ok := common.SessionFrom(ctx)
	if !ok || e.Prices == nil {
		return nil
	}
	taxonomy, err := e.WholesaleRoles(ctx)
	if err != nil {
		e.Logger.Warn().Err(err).Msg("wholesale role lookup failed")
		return nil
	}
	var out []string
	for _, r := range user.Roles {
		if slices.Contains(taxonomy, r) {
			out = append(out, r)
		}
	}
	return out
}

// lowest returns the best wholesale price among roles for the first product id that has one.
func (e *Extension) lowest(ctx context.Context, roles []string, productIDs ...int64) (decimal.Decimal, bool) {
	for _, id := range productIDs {
		if id == 0 {
			continue
		}
		var best decimal.Decimal
		found := false
		for _, role := range roles {
			p, ok, err := e.Prices.Price(ctx, role, id)
			if err != nil {
				e.Logger.Warn().Err(err).Str("role", role).Int64("product_id", id).Msg("wholesale price lookup failed")
				continue
			}
			if ok && (!found || p.LessThan(best)) {
				best, found = p, true
			}
		}
		if found {
			return best, true
		}
	}
	return decimal.Zero, false
}

// CatalogPrice replaces a product or variation price with its wholesale price.
func (e *Extension) CatalogPrice(ctx context.Context, q catalog.PriceQuote) catalog.PriceQuote {
	roles := e.customerRoles(ctx)
	if len(roles) == 0 {
		return q
	}
	if p, ok := e.lowest(ctx, roles, q.Product.ID, q.Product.ParentID); ok {
		q.Price = p
	}
	return q
}

// VariableRange recomputes a variable product's range from wholesale variation prices.
func (e *Extension) VariableRange(ctx context.Context, r catalog.PriceRange) catalog.PriceRange {
	roles := e.customerRoles(ctx)
	if len(roles) == 0 || len(r.Product.Variants) == 0 {
		return r
	}
	variants := slices.Clone(r.Product.Variants)
	changed := false
	for i := range variants {
		if p, ok := e.lowest(ctx, roles, variants[i].ID, r.Product.ID); ok {
			variants[i].Price = p
			changed = true
		}
	}
	if changed {
		r.Min, r.Max = catalog.VariantRange(variants)
	}
	return r
}

// CartTotals sets wholesale prices on cart lines before totals are summed.
func (e *Extension) CartTotals(ctx context.Context, c *cart.Cart) *cart.Cart {
	roles := e.customerRoles(ctx)
	if c == nil || len(roles) == 0 {
		return c
	}
	for i := range c.Lines {
		l := &c.Lines[i]
		if p, ok := e.lowest(ctx, roles, l.VariantID, l.ProductID); ok {
			l.Price = p
		}
	}
	return c
}

// Register attaches the extension to every shared hook point. Repeated calls replace
// the existing handlers.
func (e *Extension) Register(chains catalog.Chains, cartChain *hooks.Chain[*cart.Cart]) {
	prio := e.Priority
	if prio == 0 {
		prio = DefaultPriority
	}
	owner := interop.ExtensionOwner
	chains.Price.Add(hooks.Handler[catalog.PriceQuote]{ID: HandlerPrice, Owner: owner, Priority: prio, Fn: e.CatalogPrice})
	chains.Variation.Add(hooks.Handler[catalog.PriceQuote]{ID: HandlerVariation, Owner: owner, Priority: prio, Fn: e.CatalogPrice})
	chains.Variable.Add(hooks.Handler[catalog.PriceRange]{ID: HandlerVariable, Owner: owner, Priority: prio, Fn: e.VariableRange})
	if cartChain != nil {
		cartChain.Add(hooks.Handler[*cart.Cart]{ID: HandlerCart, Owner: owner, Priority: prio, Fn: e.CartTotals})
	}
}

// Unregister removes the extension's handlers.
func (e *Extension) Unregister(chains catalog.Chains, cartChain *hooks.Chain[*cart.Cart]) {
	chains.Price.Remove(HandlerPrice)
	chains.Variation.Remove(HandlerVariation)
	chains.Variable.Remove(HandlerVariable)
	if cartChain != nil {
		cartChain.Remove(HandlerCart)
	}
}
