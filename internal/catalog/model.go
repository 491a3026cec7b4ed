package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Product kinds.
const (
	KindSimple    = "simple"
	KindVariable  = "variable"
	KindVariation = "variation"
)

// Product is a catalog entry. Variable products carry their variations.
type Product struct {
	ID          int64           `json:"id"`
	ParentID    int64           `json:"parentId,omitempty"`
	Name        string          `json:"name"`
	Kind        string          `json:"kind"`
	Price       decimal.Decimal `json:"price"`
	Purchasable bool            `json:"purchasable"`
	TaxClass    string          `json:"taxClass,omitempty"`
	Variants    []Product       `json:"variants,omitempty"`
}

// PricingID is the product whose categories decide the discount. Variations use their parent.
func (p Product) PricingID() int64 {
	if p.ParentID != 0 {
		return p.ParentID
	}
	return p.ID
}

// Reader exposes catalog data needed for pricing.
type Reader interface {
	Product(ctx context.Context, id int64) (Product, error)
	ProductCategories(ctx context.Context, productID int64) ([]int64, error)
	CategoryParent(ctx context.Context, categoryID int64) (parent int64, found bool, err error)
}
