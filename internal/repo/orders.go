package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-rolepricing/internal/order"
)

// OrdersRepo stores orders and their lines.
type OrdersRepo struct {
	DB TxDB
}

// Create inserts the order and its lines in one transaction.
func (r OrdersRepo) Create(ctx context.Context, o order.Order) (order.Order, error) {
	err := pgx.BeginFunc(ctx, r.DB, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, user_id, cart_id, status, subtotal, discount_total, tax, total, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			o.ID, o.UserID, o.CartID, string(o.Status), o.Subtotal, o.DiscountTotal, o.Tax, o.Total, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for i := range o.Lines {
			l := &o.Lines[i]
			meta, err := json.Marshal(l.Meta)
			if err != nil {
				return fmt.Errorf("encode line meta: %w", err)
			}
			err = tx.QueryRow(ctx, `
				INSERT INTO order_lines (order_id, product_id, variant_id, name, qty, tax_class, subtotal, total, tax, meta)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING id`,
				o.ID, l.ProductID, l.VariantID, l.Name, l.Qty, l.TaxClass, l.Subtotal, l.Total, l.Tax, meta).Scan(&l.ID)
			if err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// Get loads an order with its lines.
func (r OrdersRepo) Get(ctx context.Context, id uuid.UUID) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, cart_id, status, subtotal, discount_total, tax, total, created_at, updated_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.UserID, &o.CartID, &status, &o.Subtotal, &o.DiscountTotal, &o.Tax, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if noRows(err) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, fmt.Errorf("load order: %w", err)
	}
	o.Status = order.Status(status)

	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, variant_id, name, qty, tax_class, subtotal, total, tax, meta
		FROM order_lines WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return order.Order{}, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l    order.Line
			meta []byte
		)
		if err := rows.Scan(&l.ID, &l.ProductID, &l.VariantID, &l.Name, &l.Qty, &l.TaxClass, &l.Subtotal, &l.Total, &l.Tax, &meta); err != nil {
			return order.Order{}, fmt.Errorf("scan order line: %w", err)
		}
		if err := json.Unmarshal(meta, &l.Meta); err != nil {
			return order.Order{}, fmt.Errorf("decode line meta: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// SetStatus updates the status under a row lock and returns the previous value.
func (r OrdersRepo) SetStatus(ctx context.Context, id uuid.UUID, status order.Status) (order.Status, error) {
	var previous string
	err := pgx.BeginFunc(ctx, r.DB, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&previous); err != nil {
			if noRows(err) {
				return order.ErrNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}
		_, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
		return err
	})
	if err != nil {
		return "", err
	}
	return order.Status(previous), nil
}

// ApplyCorrections rewrites corrected lines and the order totals in one transaction.
func (r OrdersRepo) ApplyCorrections(ctx context.Context, id uuid.UUID, lines []order.LineCorrection, totals order.Totals) error {
	return pgx.BeginFunc(ctx, r.DB, func(tx pgx.Tx) error {
		for _, c := range lines {
			meta, err := json.Marshal(c.Meta)
			if err != nil {
				return fmt.Errorf("encode line meta: %w", err)
			}
			tag, err := tx.Exec(ctx, `
				UPDATE order_lines SET subtotal = $3, total = $4, tax = $5, meta = $6
				WHERE id = $1 AND order_id = $2`,
				c.LineID, id, c.Subtotal, c.Total, c.Tax, meta)
			if err != nil {
				return fmt.Errorf("update order line %d: %w", c.LineID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("update order line %d: %w", c.LineID, order.ErrNotFound)
			}
		}
		_, err := tx.Exec(ctx, `
			UPDATE orders SET subtotal = $2, discount_total = $3, tax = $4, total = $5, updated_at = now()
			WHERE id = $1`,
			id, totals.Subtotal, totals.DiscountTotal, totals.Tax, totals.Total)
		if err != nil {
			return fmt.Errorf("update order totals: %w", err)
		}
		return nil
	})
}
