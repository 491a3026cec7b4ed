package pricing

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-rolepricing/internal/obs"
)

// ProductCategories looks up the categories a product belongs to.
type ProductCategories interface {
	ProductCategories(ctx context.Context, productID int64) ([]int64, error)
}

// Quoter resolves discounts for products and never fails: lookup errors degrade to no discount.
type Quoter struct {
	Resolver *Resolver
	Products ProductCategories
	Logger   zerolog.Logger
}

// Quote resolves the discount for productID under roles. point labels the caller for metrics.
func (q *Quoter) Quote(ctx context.Context, point string, productID int64, roles []string) Resolution {
	none := Resolution{Percent: decimal.Zero}
	if q == nil || q.Resolver == nil || q.Products == nil || len(roles) == 0 {
		obs.CountResolution(point, "none")
		return none
	}
	ctx, span := otel.Tracer("rolepricing/pricing").Start(ctx, "pricing.quote")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product.id", productID),
		attribute.String("pricing.point", point),
		attribute.Int("roles.count", len(roles)),
	)

	categories, err := q.Products.ProductCategories(ctx, productID)
	if err != nil {
		span.RecordError(err)
		q.Logger.Warn().Err(err).Int64("product_id", productID).Str("point", point).Msg("product lookup failed, no discount applied")
		obs.CountResolution(point, "failed")
		return none
	}
	res, err := q.Resolver.Explain(ctx, categories, roles)
	if err != nil {
		span.RecordError(err)
		q.Logger.Warn().Err(err).Int64("product_id", productID).Str("point", point).Msg("discount resolution failed, no discount applied")
		obs.CountResolution(point, "failed")
		return none
	}
	span.SetAttributes(attribute.String("pricing.percent", res.Percent.String()))
	if res.Discounted() {
		obs.CountResolution(point, "discounted")
	} else {
		obs.CountResolution(point, "none")
	}
	return res
}
