package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/models"
)

const applicationColumns = `id, user_id, display_name, company_name, email, phone, plan_type, status, created_at, reviewed_at, reviewer_id, review_notes`

func scanApplication(row scanner, app *models.SupplierApplication) error {
	var (
		reviewedAt  sql.NullTime
		reviewerID  sql.NullInt64
		reviewNotes sql.NullString
	)

	err := row.Scan(
		&app.ID,
		&app.UserID,
		&app.DisplayName,
		&app.CompanyName,
		&app.Email,
		&app.Phone,
		&app.PlanType,
		&app.Status,
		&app.CreatedAt,
		&reviewedAt,
		&reviewerID,
		&reviewNotes,
	)
	if err != nil {
		return err
	}

	if reviewedAt.Valid {
		app.ReviewedAt = &reviewedAt.Time
	}
	if reviewerID.Valid {
		app.ReviewerID = &reviewerID.Int64
	}
	if reviewNotes.Valid {
		app.ReviewNotes = &reviewNotes.String
	}
	return nil
}

func (s *Store) CreateApplication(ctx context.Context, app *models.SupplierApplication) error {
	query := `
		INSERT INTO supplier_applications (user_id, display_name, company_name, email, phone, plan_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING ` + applicationColumns

	err := scanApplication(s.db.QueryRowContext(ctx, query,
		app.UserID,
		app.DisplayName,
		app.CompanyName,
		app.Email,
		app.Phone,
		app.PlanType,
		models.ApplicationPending,
	), app)
	if err != nil {
		return fmt.Errorf("create supplier application: %w", err)
	}

	return nil
}

func (s *Store) GetApplication(ctx context.Context, id int64) (*models.SupplierApplication, error) {
	app := &models.SupplierApplication{}

	err := scanApplication(s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM supplier_applications WHERE id = $1`, id), app)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("get supplier application: %w", err)
	}

	return app, nil
}

// ReviewApplication records the admin decision on a pending application.
// Approval also grants the applicant the Supplier role in the same
// transaction.
func (s *Store) ReviewApplication(ctx context.Context, id int64, decision models.ApplicationStatus, reviewerID int64, notes *string) (*models.SupplierApplication, error) {
	app := &models.SupplierApplication{}

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := scanApplication(tx.QueryRowContext(ctx,
			`UPDATE supplier_applications
			 SET status = $1, reviewed_at = NOW(), reviewer_id = $2, review_notes = $3
			 WHERE id = $4 AND status = $5
			 RETURNING `+applicationColumns,
			decision, reviewerID, notes, id, models.ApplicationPending), app)
		if database.IsNoRows(err) {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM supplier_applications WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("check application exists: %w", err)
			}
			if !exists {
				return database.ErrApplicationNotFound
			}
			return database.ErrAlreadyReviewed
		}
		if err != nil {
			return fmt.Errorf("review supplier application: %w", err)
		}

		if decision == models.ApplicationApproved {
			return addRole(ctx, tx, app.UserID, models.RoleSupplier)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return app, nil
}

func (s *Store) ListApplications(ctx context.Context, status *models.ApplicationStatus, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM supplier_applications WHERE ($1::text IS NULL OR status = $1)`,
		status).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count supplier applications: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + applicationColumns + `
		FROM supplier_applications
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, status, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list supplier applications: %w", err)
	}
	defer rows.Close()

	apps := []models.SupplierApplication{}
	for rows.Next() {
		var app models.SupplierApplication
		if err := scanApplication(rows, &app); err != nil {
			return nil, fmt.Errorf("scan supplier application: %w", err)
		}
		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      apps,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// LatestApprovedPlan returns the plan of the supplier's most recently
// reviewed approved application.
func (s *Store) LatestApprovedPlan(ctx context.Context, supplierID int64) (models.PlanType, bool, error) {
	var plan models.PlanType

	err := s.db.QueryRowContext(ctx,
		`SELECT plan_type
		 FROM supplier_applications
		 WHERE user_id = $1 AND status = $2
		 ORDER BY reviewed_at DESC NULLS LAST, id DESC
		 LIMIT 1`,
		supplierID, models.ApplicationApproved).Scan(&plan)
	if err != nil {
		if database.IsNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("latest approved plan: %w", err)
	}

	return plan, true, nil
}
