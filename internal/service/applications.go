package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/store"
)

type SubmitApplicationInput struct {
	DisplayName string
	CompanyName string
	Email       string
	Phone       string
	PlanType    models.PlanType
}

// ApplicationService handles supplier onboarding.
type ApplicationService struct {
	store  Store
	logger *zap.Logger
}

func NewApplicationService(s Store, logger *zap.Logger) *ApplicationService {
	return &ApplicationService{store: s, logger: logger}
}

func (s *ApplicationService) Submit(ctx context.Context, userID int64, in SubmitApplicationInput) (*models.SupplierApplication, error) {
	if strings.TrimSpace(in.DisplayName) == "" {
		return nil, invalid("display_name", "is required")
	}
	if in.PlanType == "" {
		in.PlanType = models.PlanCommission
	}
	if !in.PlanType.IsValid() {
		return nil, invalid("plan_type", "must be commission or subscription")
	}

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	app := &models.SupplierApplication{
		UserID:      userID,
		DisplayName: strings.TrimSpace(in.DisplayName),
		CompanyName: in.CompanyName,
		Email:       in.Email,
		Phone:       in.Phone,
		PlanType:    in.PlanType,
	}
	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, err
	}

	s.logger.Info("Supplier application submitted",
		zap.Int64("application_id", app.ID),
		zap.Int64("user_id", userID),
		zap.String("plan_type", string(app.PlanType)))

	return app, nil
}

// Review approves or rejects a pending application. Only admins may
// review, and a decision is final.
func (s *ApplicationService) Review(ctx context.Context, id, reviewerID int64, approve bool, notes *string) (*models.SupplierApplication, error) {
	if err := s.requireAdmin(ctx, reviewerID); err != nil {
		return nil, err
	}

	decision := models.ApplicationRejected
	if approve {
		decision = models.ApplicationApproved
	}

	app, err := s.store.ReviewApplication(ctx, id, decision, reviewerID, notes)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Supplier application reviewed",
		zap.Int64("application_id", id),
		zap.Int64("reviewer_id", reviewerID),
		zap.String("decision", string(decision)))

	return app, nil
}

func (s *ApplicationService) List(ctx context.Context, actorID int64, status *models.ApplicationStatus, page, pageSize int) (*store.OffsetPage, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, invalid("status", "must be pending, approved or rejected")
	}
	return s.store.ListApplications(ctx, status, page, pageSize)
}

func (s *ApplicationService) requireAdmin(ctx context.Context, userID int64) error {
	return requireRole(ctx, s.store, s.logger, userID, models.RoleAdmin)
}

func requireRole(ctx context.Context, st Store, logger *zap.Logger, userID int64, role models.Role) error {
	user, err := st.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasRole(role) {
		logger.Info("Forbidden: missing role",
			zap.Int64("user_id", userID),
			zap.String("role", string(role)))
		return ErrForbidden
	}
	return nil
}
