package repo

import (
	"context"
	"fmt"

	"github.com/noah-isme/toko-rolepricing/internal/catalog"
)

// CatalogRepo reads products and the category tree.
type CatalogRepo struct {
	DB DBTX
}

const productColumns = `id, COALESCE(parent_id, 0), name, kind, price, purchasable, tax_class`

func scanProduct(row interface{ Scan(dest ...any) error }) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.ParentID, &p.Name, &p.Kind, &p.Price, &p.Purchasable, &p.TaxClass)
	return p, err
}

// Product loads a product. Variable products come with their variations.
func (r CatalogRepo) Product(ctx context.Context, id int64) (catalog.Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if noRows(err) {
			return catalog.Product{}, catalog.ErrNotFound
		}
		return catalog.Product{}, fmt.Errorf("load product: %w", err)
	}
	if p.Kind != catalog.KindVariable {
		return p, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE parent_id = $1 ORDER BY id`, id)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("load variations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanProduct(rows)
		if err != nil {
			return catalog.Product{}, fmt.Errorf("scan variation: %w", err)
		}
		p.Variants = append(p.Variants, v)
	}
	return p, rows.Err()
}

// ProductCategories lists the categories productID is assigned to. A product without
// categories yields an empty list; an unknown product yields catalog.ErrNotFound.
func (r CatalogRepo) ProductCategories(ctx context.Context, productID int64) ([]int64, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT pc.category_id
		FROM products p
		LEFT JOIN product_categories pc ON pc.product_id = p.id
		WHERE p.id = $1
		ORDER BY pc.category_id`, productID)
	if err != nil {
		return nil, fmt.Errorf("load product categories: %w", err)
	}
	defer rows.Close()
	out := []int64{}
	found := false
	for rows.Next() {
		found = true
		var id *int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id != nil {
			out = append(out, *id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, catalog.ErrNotFound
	}
	return out, nil
}

// CategoryParent returns the parent of categoryID. Unknown categories report found=false.
func (r CatalogRepo) CategoryParent(ctx context.Context, categoryID int64) (int64, bool, error) {
	var parent int64
	err := r.DB.QueryRow(ctx, `SELECT parent_id FROM categories WHERE id = $1`, categoryID).Scan(&parent)
	if err != nil {
		if noRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("load category: %w", err)
	}
	return parent, true, nil
}
