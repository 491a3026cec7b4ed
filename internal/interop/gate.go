package interop

import (
	"context"

	"github.com/noah-isme/toko-rolepricing/internal/common"
	"github.com/noah-isme/toko-rolepricing/internal/pricing"
)

// Gate resolves the discount for the session carried by the context.
type Gate struct {
	Layer  *Layer
	Quoter *pricing.Quoter
}

// Discount returns no discount for visitors, for users the wholesale extension owns,
// and for users without applicable roles.
func (g *Gate) Discount(ctx context.Context, point string, productID int64) pricing.Resolution {
	user, ok := common.SessionFrom(ctx)
	if !ok || g == nil || g.Layer == nil {
		return pricing.Resolution{}
	}
	elig := g.Layer.Eligibility(ctx, user)
	if !elig.Run || len(elig.Roles) == 0 {
		return pricing.Resolution{}
	}
	return g.Quoter.Quote(ctx, point, productID, elig.Roles)
}
