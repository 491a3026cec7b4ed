package repo

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// WholesalePrices reads the wholesale price list.
type WholesalePrices struct {
	DB DBTX
}

// Price returns the wholesale price of productID for role.
func (r WholesalePrices) Price(ctx context.Context, role string, productID int64) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := r.DB.QueryRow(ctx, `SELECT price FROM wholesale_prices WHERE role = $1 AND product_id = $2`, role, productID).Scan(&price)
	if err != nil {
		if noRows(err) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("load wholesale price: %w", err)
	}
	return price, true, nil
}

// Roles lists every role with a wholesale price.
func (r WholesalePrices) Roles(ctx context.Context) ([]string, error) {
	rows, err := r.DB.Query(ctx, `SELECT DISTINCT role FROM wholesale_prices ORDER BY role`)
	if err != nil {
		return nil, fmt.Errorf("list wholesale roles: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}
