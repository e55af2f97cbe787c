package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, email, name string, roles ...models.Role) (*models.User, error) {
	user := &models.User{}

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO users (email, name, created_at, updated_at, version)
			 VALUES ($1, $2, NOW(), NOW(), 1)
			 RETURNING id, email, name, created_at, updated_at, version`,
			email, name).Scan(
			&user.ID,
			&user.Email,
			&user.Name,
			&user.CreatedAt,
			&user.UpdatedAt,
			&user.Version,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%s: %w", email, database.ErrUserExists)
			}
			return fmt.Errorf("create user: %w", err)
		}

		for _, role := range roles {
			if err := addRole(ctx, tx, user.ID, role); err != nil {
				return err
			}
		}
		user.Roles = append(user.Roles, roles...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	var roles pq.StringArray

	query := `
		SELECT u.id, u.email, u.name, u.created_at, u.updated_at, u.version,
		       COALESCE(array_agg(r.role ORDER BY r.role) FILTER (WHERE r.role IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles r ON r.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.id`

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
		&roles,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	for _, r := range roles {
		user.Roles = append(user.Roles, models.Role(r))
	}

	return user, nil
}

func (s *Store) AddRole(ctx context.Context, userID int64, role models.Role) error {
	return addRole(ctx, s.db, userID, role)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func addRole(ctx context.Context, db execer, userID int64, role models.Role) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid role %q", role)
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		 ON CONFLICT (user_id, role) DO NOTHING`,
		userID, string(role))
	if err != nil {
		return fmt.Errorf("add role %s: %w", role, err)
	}
	return nil
}
