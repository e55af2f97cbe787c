package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/pricing"
)

type CreateOrderRequest struct {
	BuyerID           int64
	OfferID           int64
	Quantity          int
	ShippingAddressID *int64
}

// QuoteFunc prices the line against the locked offer row.
type QuoteFunc func(offer models.Offer) (pricing.Line, error)

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixNano())
}

const orderColumns = `id, buyer_id, order_number, status, total_amount, shipping_address_id, created_at, updated_at, version`

func scanOrder(row scanner, order *models.Order) error {
	var shippingAddressID sql.NullInt64

	err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.OrderNumber,
		&order.Status,
		&order.TotalAmount,
		&shippingAddressID,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return err
	}

	if shippingAddressID.Valid {
		order.ShippingAddressID = &shippingAddressID.Int64
	}
	return nil
}

// CreateOrder locks the offer, prices the line with quote, inserts the
// order and its single item, and reserves stock, all in one serializable
// transaction.
func (s *Store) CreateOrder(ctx context.Context, req CreateOrderRequest, quote QuoteFunc) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, s.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)",
			req.BuyerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check buyer exists: %w", err)
		}
		if !exists {
			return database.ErrUserNotFound
		}

		offer, err := lockOffer(ctx, tx, req.OfferID)
		if err != nil {
			return err
		}

		line, err := quote(*offer)
		if err != nil {
			return err
		}

		if offer.StockQuantity < req.Quantity {
			return database.ErrInsufficientStock
		}

		total := pricing.Total(line)

		order = &models.Order{
			BuyerID:           req.BuyerID,
			OrderNumber:       generateOrderNumber(),
			Status:            models.OrderStatusPending,
			TotalAmount:       total,
			ShippingAddressID: req.ShippingAddressID,
		}

		err = scanOrder(tx.QueryRowContext(ctx,
			`INSERT INTO orders (buyer_id, order_number, status, total_amount, shipping_address_id, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
			 RETURNING `+orderColumns,
			order.BuyerID, order.OrderNumber, order.Status, order.TotalAmount, order.ShippingAddressID), order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		item := models.OrderItem{
			OrderID:          order.ID,
			OfferID:          offer.ID,
			SupplierID:       offer.SupplierID,
			Quantity:         req.Quantity,
			UnitPrice:        line.UnitPrice,
			LineTotal:        line.LineTotal,
			CommissionRate:   line.CommissionRate,
			CommissionAmount: line.CommissionAmount,
			NetToSupplier:    line.NetToSupplier,
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, offer_id, quantity, unit_price, line_total, commission_rate, commission_amount, net_to_supplier, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			 RETURNING id, created_at`,
			item.OrderID, item.OfferID, item.Quantity, item.UnitPrice, item.LineTotal,
			item.CommissionRate, item.CommissionAmount, item.NetToSupplier).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}

		if err := decrementStock(ctx, tx, offer.ID, req.Quantity); err != nil {
			return err
		}

		if err := verifyOrderTotal(ctx, tx, order.ID); err != nil {
			return err
		}

		order.Items = []models.OrderItem{item}
		return nil
	})

	if err != nil {
		if database.IsLockNotAvailable(err) {
			return nil, database.ErrLockTimeout
		}
		return nil, err
	}

	return order, nil
}

func verifyOrderTotal(ctx context.Context, tx *sql.Tx, orderID int64) error {
	var matches bool
	err := tx.QueryRowContext(ctx,
		`SELECT o.total_amount = COALESCE(SUM(i.line_total), 0)
		 FROM orders o
		 LEFT JOIN order_items i ON i.order_id = o.id
		 WHERE o.id = $1
		 GROUP BY o.id`,
		orderID).Scan(&matches)
	if err != nil {
		return fmt.Errorf("verify order total: %w", err)
	}
	if !matches {
		return fmt.Errorf("order %d: %w", orderID, database.ErrInvariantViolation)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	itemsQuery := `
		SELECT i.id, i.order_id, i.offer_id, f.supplier_id, i.quantity, i.unit_price, i.line_total,
		       i.commission_rate, i.commission_amount, i.net_to_supplier, i.created_at
		FROM order_items i
		JOIN offers f ON f.id = i.offer_id
		WHERE i.order_id = $1
		ORDER BY i.id`

	rows, err := s.db.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.OfferID,
			&item.SupplierID,
			&item.Quantity,
			&item.UnitPrice,
			&item.LineTotal,
			&item.CommissionRate,
			&item.CommissionAmount,
			&item.NetToSupplier,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	order.Items = items

	return order, nil
}

// TransitionOrder moves the order from one status to another only if it is
// still in from. It reports false when another request already moved it or
// it was never in from.
func (s *Store) TransitionOrder(ctx context.Context, id int64, from, to models.OrderStatus) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// CancelResult describes what a successful cancel released.
type CancelResult struct {
	Applied           bool
	Restocked         int
	PaymentsCancelled int64
}

// CancelOrder cancels a pending order in one transaction: it locks the
// order and its payment attempts, refuses with ErrPaymentCaptured when any
// attempt is captured, returns the reserved quantities to their offers and
// cancels the pending attempts. Applied is false when the order is no
// longer pending.
func (s *Store) CancelOrder(ctx context.Context, id int64) (CancelResult, error) {
	var res CancelResult

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		res = CancelResult{}

		var status models.OrderStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if database.IsNoRows(err) {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}
		if status != models.OrderStatusPending {
			return nil
		}

		var captured bool
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(bool_or(status = $2), false)
			 FROM (SELECT status FROM payments WHERE order_id = $1 FOR UPDATE) p`,
			id, models.PaymentStatusCaptured).Scan(&captured)
		if err != nil {
			return fmt.Errorf("lock payments: %w", err)
		}
		if captured {
			return database.ErrPaymentCaptured
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1, version = version + 1, updated_at = NOW()
			 WHERE id = $2`,
			models.OrderStatusCancelled, id)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}

		err = tx.QueryRowContext(ctx,
			`WITH released AS (
			     SELECT offer_id, SUM(quantity) AS quantity
			     FROM order_items
			     WHERE order_id = $1
			     GROUP BY offer_id
			 ), restocked AS (
			     UPDATE offers f
			     SET stock_quantity = f.stock_quantity + r.quantity, updated_at = NOW()
			     FROM released r
			     WHERE f.id = r.offer_id
			     RETURNING r.quantity
			 )
			 SELECT COALESCE(SUM(quantity), 0)::int FROM restocked`,
			id).Scan(&res.Restocked)
		if err != nil {
			return fmt.Errorf("release stock: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE payments
			 SET status = $1, version = version + 1, updated_at = NOW()
			 WHERE order_id = $2 AND status = $3`,
			models.PaymentStatusCancelled, id, models.PaymentStatusPending)
		if err != nil {
			return fmt.Errorf("cancel pending payments: %w", err)
		}
		if res.PaymentsCancelled, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}

		res.Applied = true
		return nil
	})

	return res, err
}

func (s *Store) ListOrdersCursor(ctx context.Context, buyerID int64, cursor string, limit int) (*CursorPage, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE buyer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	return s.listOrders(ctx, query, buyerID, cursor, limit)
}

// ListSupplierOrdersCursor lists orders that contain at least one item
// sold through one of the supplier's offers.
func (s *Store) ListSupplierOrdersCursor(ctx context.Context, supplierID int64, cursor string, limit int) (*CursorPage, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE EXISTS (
		        SELECT 1 FROM order_items i
		        JOIN offers f ON f.id = i.offer_id
		        WHERE i.order_id = o.id AND f.supplier_id = $1)
		  AND (o.created_at, o.id) < ($2, $3)
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $4`

	return s.listOrders(ctx, query, supplierID, cursor, limit)
}

func (s *Store) listOrders(ctx context.Context, query string, ownerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, ownerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
