package service

import (
	"context"

	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/store"
)

// Store is the persistence contract the services depend on. *store.Store
// implements it against PostgreSQL.
type Store interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)

	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetOffer(ctx context.Context, id int64) (*models.Offer, error)
	CreateOffer(ctx context.Context, offer *models.Offer) error
	UpdateOffer(ctx context.Context, offer *models.Offer) error

	CreateOrder(ctx context.Context, req store.CreateOrderRequest, quote store.QuoteFunc) (*models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	TransitionOrder(ctx context.Context, id int64, from, to models.OrderStatus) (bool, error)
	CancelOrder(ctx context.Context, id int64) (store.CancelResult, error)
	ListOrdersCursor(ctx context.Context, buyerID int64, cursor string, limit int) (*store.CursorPage, error)
	ListSupplierOrdersCursor(ctx context.Context, supplierID int64, cursor string, limit int) (*store.CursorPage, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	SetPaymentReference(ctx context.Context, id int64, reference string) error
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	LatestPaymentForOrder(ctx context.Context, orderID int64) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status models.PaymentStatus) (models.PaymentStatus, bool, error)

	CreateApplication(ctx context.Context, app *models.SupplierApplication) error
	ReviewApplication(ctx context.Context, id int64, decision models.ApplicationStatus, reviewerID int64, notes *string) (*models.SupplierApplication, error)
	ListApplications(ctx context.Context, status *models.ApplicationStatus, page, pageSize int) (*store.OffsetPage, error)
	LatestApprovedPlan(ctx context.Context, supplierID int64) (models.PlanType, bool, error)

	IsWebhookEventProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkWebhookEventProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error)

	SupplierEarnings(ctx context.Context, f store.EarningsFilter) ([]models.EarningsLine, error)
	SupplierEarningsTotals(ctx context.Context, f store.EarningsFilter) (models.EarningsTotals, error)
}

var _ Store = (*store.Store)(nil)
