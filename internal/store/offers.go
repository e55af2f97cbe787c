package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/models"
)

const offerColumns = `id, product_id, supplier_id, price, currency, stock_quantity, min_order_qty, is_active, created_at, updated_at, version`

func scanOffer(row scanner, offer *models.Offer) error {
	return row.Scan(
		&offer.ID,
		&offer.ProductID,
		&offer.SupplierID,
		&offer.Price,
		&offer.Currency,
		&offer.StockQuantity,
		&offer.MinOrderQty,
		&offer.IsActive,
		&offer.CreatedAt,
		&offer.UpdatedAt,
		&offer.Version,
	)
}

func (s *Store) CreateProduct(ctx context.Context, sku, name, description string) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (sku, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, sku, name, description, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, sku, name, description).Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product := &models.Product{}

	err := s.db.QueryRowContext(ctx,
		`SELECT id, sku, name, description, created_at, updated_at FROM products WHERE id = $1`,
		id).Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func (s *Store) CreateOffer(ctx context.Context, offer *models.Offer) error {
	query := `
		INSERT INTO offers (product_id, supplier_id, price, currency, stock_quantity, min_order_qty, is_active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + offerColumns

	err := scanOffer(s.db.QueryRowContext(ctx, query,
		offer.ProductID,
		offer.SupplierID,
		offer.Price,
		offer.Currency,
		offer.StockQuantity,
		offer.MinOrderQty,
		offer.IsActive,
	), offer)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	return nil
}

func (s *Store) GetOffer(ctx context.Context, id int64) (*models.Offer, error) {
	offer := &models.Offer{}

	err := scanOffer(s.db.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE id = $1`, id), offer)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrOfferNotFound
		}
		return nil, fmt.Errorf("get offer: %w", err)
	}

	return offer, nil
}

// UpdateOffer writes the supplier-editable fields of offer if its version
// still matches the stored row, and bumps the version.
func (s *Store) UpdateOffer(ctx context.Context, offer *models.Offer) error {
	query := `
		UPDATE offers
		SET price = $1, stock_quantity = $2, min_order_qty = $3, is_active = $4,
		    version = version + 1, updated_at = NOW()
		WHERE id = $5 AND supplier_id = $6 AND version = $7
		RETURNING ` + offerColumns

	err := scanOffer(s.db.QueryRowContext(ctx, query,
		offer.Price,
		offer.StockQuantity,
		offer.MinOrderQty,
		offer.IsActive,
		offer.ID,
		offer.SupplierID,
		offer.Version,
	), offer)
	if err != nil {
		if database.IsNoRows(err) {
			return database.ErrOptimisticLockFailed
		}
		return fmt.Errorf("update offer: %w", err)
	}

	return nil
}

// lockOffer takes a row lock on the offer without waiting; a concurrent
// holder surfaces as a lock-not-available error that WithRetry retries.
func lockOffer(ctx context.Context, tx *sql.Tx, id int64) (*models.Offer, error) {
	offer := &models.Offer{}

	err := scanOffer(tx.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE id = $1 FOR UPDATE NOWAIT`, id), offer)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrOfferNotFound
		}
		return nil, fmt.Errorf("lock offer %d: %w", id, err)
	}

	return offer, nil
}

func decrementStock(ctx context.Context, tx *sql.Tx, offerID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE offers
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, offerID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}
