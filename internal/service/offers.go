package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/models"
)

type CreateOfferInput struct {
	ProductID     int64
	Price         decimal.Decimal
	StockQuantity int
	MinOrderQty   int
}

// UpdateOfferInput carries the fields a supplier changes. Nil fields are
// left as they are. Version must match the stored offer.
type UpdateOfferInput struct {
	Price         *decimal.Decimal
	StockQuantity *int
	MinOrderQty   *int
	IsActive      *bool
	Version       int
}

type OfferService struct {
	store    Store
	logger   *zap.Logger
	currency string
}

func NewOfferService(s Store, logger *zap.Logger, currency string) *OfferService {
	return &OfferService{store: s, logger: logger, currency: currency}
}

func (s *OfferService) CreateOffer(ctx context.Context, supplierID int64, in CreateOfferInput) (*models.Offer, error) {
	if err := requireRole(ctx, s.store, s.logger, supplierID, models.RoleSupplier); err != nil {
		return nil, err
	}

	if in.MinOrderQty == 0 {
		in.MinOrderQty = 1
	}
	offer := &models.Offer{
		ProductID:     in.ProductID,
		SupplierID:    supplierID,
		Price:         in.Price,
		Currency:      s.currency,
		StockQuantity: in.StockQuantity,
		MinOrderQty:   in.MinOrderQty,
		IsActive:      true,
	}
	if err := validateOffer(offer); err != nil {
		return nil, err
	}

	if _, err := s.store.GetProduct(ctx, in.ProductID); err != nil {
		return nil, err
	}

	if err := s.store.CreateOffer(ctx, offer); err != nil {
		return nil, err
	}

	s.logger.Info("Offer created",
		zap.Int64("offer_id", offer.ID),
		zap.Int64("supplier_id", supplierID),
		zap.Int64("product_id", offer.ProductID))

	return offer, nil
}

// UpdateOffer applies in to an offer owned by supplierID. A stale Version
// fails with database.ErrOptimisticLockFailed.
func (s *OfferService) UpdateOffer(ctx context.Context, supplierID, offerID int64, in UpdateOfferInput) (*models.Offer, error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	if offer.SupplierID != supplierID {
		s.logger.Info("Forbidden offer update",
			zap.Int64("offer_id", offerID),
			zap.Int64("actor_id", supplierID))
		return nil, ErrForbidden
	}

	if in.Price != nil {
		offer.Price = *in.Price
	}
	if in.StockQuantity != nil {
		offer.StockQuantity = *in.StockQuantity
	}
	if in.MinOrderQty != nil {
		offer.MinOrderQty = *in.MinOrderQty
	}
	if in.IsActive != nil {
		offer.IsActive = *in.IsActive
	}
	offer.Version = in.Version

	if err := validateOffer(offer); err != nil {
		return nil, err
	}

	if err := s.store.UpdateOffer(ctx, offer); err != nil {
		return nil, err
	}

	return offer, nil
}

func validateOffer(o *models.Offer) error {
	if !o.Price.IsPositive() {
		return invalid("price", "must be positive")
	}
	if !o.Price.Equal(o.Price.Round(2)) {
		return invalid("price", "must have at most two decimal places")
	}
	if o.StockQuantity < 0 {
		return invalid("stock_quantity", "must not be negative")
	}
	if o.MinOrderQty < 1 {
		return invalid("min_order_qty", "must be at least 1")
	}
	return nil
}
