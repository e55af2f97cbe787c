package store

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/rain-market/internal/models"
)

type EarningsFilter struct {
	SupplierID int64
	From       *time.Time
	To         *time.Time
	Limit      int
}

const earningsScope = `
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		JOIN offers f ON f.id = i.offer_id
		WHERE f.supplier_id = $1
		  AND o.status <> $2
		  AND ($3::timestamptz IS NULL OR o.created_at >= $3)
		  AND ($4::timestamptz IS NULL OR o.created_at < $4)`

// SupplierEarningsTotals sums every line in the filter's range. Limit is
// ignored.
func (s *Store) SupplierEarningsTotals(ctx context.Context, f EarningsFilter) (models.EarningsTotals, error) {
	var t models.EarningsTotals

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(i.line_total), 0),
		        COALESCE(SUM(i.commission_amount), 0),
		        COALESCE(SUM(i.net_to_supplier), 0)`+earningsScope,
		f.SupplierID, models.OrderStatusCancelled, f.From, f.To,
	).Scan(&t.Lines, &t.Gross, &t.Commission, &t.Net)
	if err != nil {
		return t, fmt.Errorf("supplier earnings totals: %w", err)
	}

	return t, nil
}

// SupplierEarnings lists the supplier's settlement lines, newest first.
// Cancelled orders are excluded.
func (s *Store) SupplierEarnings(ctx context.Context, f EarningsFilter) ([]models.EarningsLine, error) {
	query := `
		SELECT o.id, o.created_at, p.name, i.quantity, i.unit_price, i.line_total,
		       i.commission_rate, i.commission_amount, i.net_to_supplier
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		JOIN offers f ON f.id = i.offer_id
		JOIN products p ON p.id = f.product_id
		WHERE f.supplier_id = $1
		  AND o.status <> $2
		  AND ($3::timestamptz IS NULL OR o.created_at >= $3)
		  AND ($4::timestamptz IS NULL OR o.created_at < $4)
		ORDER BY o.created_at DESC, i.id DESC
		LIMIT $5`

	rows, err := s.db.QueryContext(ctx, query,
		f.SupplierID, models.OrderStatusCancelled, f.From, f.To, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("supplier earnings: %w", err)
	}
	defer rows.Close()

	lines := []models.EarningsLine{}
	for rows.Next() {
		var line models.EarningsLine
		err := rows.Scan(
			&line.OrderID,
			&line.OrderDate,
			&line.ProductName,
			&line.Quantity,
			&line.UnitPrice,
			&line.LineTotal,
			&line.CommissionRate,
			&line.CommissionAmount,
			&line.NetToSupplier,
		)
		if err != nil {
			return nil, fmt.Errorf("scan earnings line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}
