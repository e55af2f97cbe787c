package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/models"
)

const paymentColumns = `id, order_id, method, status, amount, currency, provider, provider_reference, success_url, cancel_url, created_at, updated_at, version`

func scanPayment(row scanner, p *models.Payment) error {
	var reference sql.NullString

	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Method,
		&p.Status,
		&p.Amount,
		&p.Currency,
		&p.Provider,
		&reference,
		&p.SuccessURL,
		&p.CancelURL,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
	if err != nil {
		return err
	}

	p.ProviderReference = nil
	if reference.Valid {
		p.ProviderReference = &reference.String
	}
	return nil
}

// CreatePayment inserts a new payment attempt. Earlier attempts for the
// same order are left untouched.
func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, method, status, amount, currency, provider, success_url, cancel_url, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
		RETURNING ` + paymentColumns

	err := scanPayment(s.db.QueryRowContext(ctx, query,
		p.OrderID,
		p.Method,
		p.Status,
		p.Amount,
		p.Currency,
		p.Provider,
		p.SuccessURL,
		p.CancelURL,
	), p)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	return nil
}

func (s *Store) SetPaymentReference(ctx context.Context, id int64, reference string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE payments
		 SET provider_reference = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2`,
		reference, id)
	if err != nil {
		return fmt.Errorf("set payment reference: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrPaymentNotFound
	}

	return nil
}

func (s *Store) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return s.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (s *Store) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return s.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE provider_reference = $1`, reference)
}

// LatestPaymentForOrder returns the most recent payment attempt.
func (s *Store) LatestPaymentForOrder(ctx context.Context, orderID int64) (*models.Payment, error) {
	return s.getPayment(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE order_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		orderID)
}

func (s *Store) getPayment(ctx context.Context, query string, arg any) (*models.Payment, error) {
	p := &models.Payment{}

	err := scanPayment(s.db.QueryRowContext(ctx, query, arg), p)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}

	return p, nil
}

// UpdatePaymentStatus sets the status under a row lock and returns the
// status it replaced. changed is false when the payment already had the
// requested status, in which case nothing is written.
func (s *Store) UpdatePaymentStatus(ctx context.Context, id int64, status models.PaymentStatus) (previous models.PaymentStatus, changed bool, err error) {
	err = database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM payments WHERE id = $1 FOR UPDATE`, id).Scan(&previous)
		if err != nil {
			if database.IsNoRows(err) {
				return database.ErrPaymentNotFound
			}
			return fmt.Errorf("lock payment: %w", err)
		}

		if previous == status {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE payments
			 SET status = $1, version = version + 1, updated_at = NOW()
			 WHERE id = $2`,
			status, id)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}

		changed = true
		return nil
	})

	return previous, changed, err
}
