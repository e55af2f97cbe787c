package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/gateway"
	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/notify"
)

type CheckoutConfig struct {
	Currency   string
	Timeout    time.Duration
	SuccessURL string
	CancelURL  string
}

type CheckoutResult struct {
	Payment     *models.Payment
	RedirectURL string
}

type CheckoutService struct {
	store   Store
	gateway gateway.Gateway
	cfg     CheckoutConfig
	logger  *zap.Logger
	applier *statusApplier
}

func NewCheckoutService(s Store, gw gateway.Gateway, notifier notify.Notifier, logger *zap.Logger, cfg CheckoutConfig) *CheckoutService {
	return &CheckoutService{
		store:   s,
		gateway: gw,
		cfg:     cfg,
		logger:  logger,
		applier: &statusApplier{store: s, notifier: notifier, logger: logger},
	}
}

// BeginCheckout records a new payment attempt for a pending order and
// opens a hosted session with the gateway. If the gateway fails or times
// out, the attempt stays Pending without a reference and the buyer can
// retry with a fresh attempt.
func (s *CheckoutService) BeginCheckout(ctx context.Context, orderID, buyerID int64, method models.PaymentMethod) (*CheckoutResult, error) {
	if !method.IsValid() {
		return nil, invalid("method", fmt.Sprintf("unsupported payment method %q", method))
	}

	order, err := s.payableOrder(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderID:    order.ID,
		Method:     method,
		Status:     models.PaymentStatusPending,
		Amount:     order.TotalAmount,
		Currency:   s.cfg.Currency,
		Provider:   s.gateway.Name(),
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	session, err := s.gateway.CreateSession(gctx, gatewayRequest(payment))
	if err != nil {
		s.logger.Warn("Payment gateway session failed",
			zap.Int64("order_id", order.ID),
			zap.Int64("payment_id", payment.ID),
			zap.String("provider", s.gateway.Name()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	if err := s.store.SetPaymentReference(ctx, payment.ID, session.Reference); err != nil {
		return nil, err
	}
	payment.ProviderReference = &session.Reference

	s.logger.Info("Checkout started",
		zap.Int64("order_id", order.ID),
		zap.Int64("payment_id", payment.ID),
		zap.String("provider", s.gateway.Name()))

	return &CheckoutResult{Payment: payment, RedirectURL: session.RedirectURL}, nil
}

func (s *CheckoutService) payableOrder(ctx context.Context, orderID, buyerID int64) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.BuyerID != buyerID {
		s.logger.Info("Forbidden checkout",
			zap.Int64("order_id", orderID),
			zap.Int64("actor_id", buyerID))
		return nil, ErrForbidden
	}

	if order.Status != models.OrderStatusPending {
		return nil, ErrOrderNotPayable
	}

	latest, err := s.store.LatestPaymentForOrder(ctx, orderID)
	switch {
	case errors.Is(err, database.ErrPaymentNotFound):
	case err != nil:
		return nil, err
	case latest.Status == models.PaymentStatusCaptured:
		return nil, ErrAlreadyPaid
	}

	return order, nil
}

// VerifyPayment asks the gateway for the authoritative status of the
// order's latest payment attempt and applies it.
func (s *CheckoutService) VerifyPayment(ctx context.Context, orderID, buyerID int64) (*models.Payment, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		s.logger.Info("Forbidden payment verification",
			zap.Int64("order_id", orderID),
			zap.Int64("actor_id", buyerID))
		return nil, ErrForbidden
	}

	payment, err := s.store.LatestPaymentForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment.ProviderReference == nil {
		return nil, ErrNoPaymentReference
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	status, err := s.gateway.Verify(gctx, *payment.ProviderReference)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	if _, err := s.applier.apply(ctx, payment, status, decimal.Zero, ""); err != nil {
		return nil, err
	}

	return payment, nil
}

func gatewayRequest(p *models.Payment) gateway.SessionRequest {
	return gateway.SessionRequest{
		OrderID:    p.OrderID,
		PaymentID:  p.ID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Method:     p.Method,
		SuccessURL: p.SuccessURL,
		CancelURL:  p.CancelURL,
	}
}
