package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/notify"
)

// statusApplier is the single write path for gateway-driven payment
// status changes, shared by webhook reconciliation and manual
// verification.
type statusApplier struct {
	store    Store
	notifier notify.Notifier
	logger   *zap.Logger
}

// apply moves the payment to status. Statuses are accepted in any order;
// the last one applied wins. It reports false, and notifies nobody, when
// the payment already had that status.
func (a *statusApplier) apply(ctx context.Context, payment *models.Payment, status models.PaymentStatus, amount decimal.Decimal, currency string) (bool, error) {
	previous, changed, err := a.store.UpdatePaymentStatus(ctx, payment.ID, status)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	if !previous.IsExpectedTransition(status) {
		a.logger.Warn("Out-of-order payment status applied",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("order_id", payment.OrderID),
			zap.String("from", string(previous)),
			zap.String("to", string(status)))
	}

	payment.Status = status
	a.logger.Info("Payment status changed",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("order_id", payment.OrderID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)))

	kind, payload := paymentNotification(payment, status, amount, currency)
	if kind == "" {
		return true, nil
	}

	order, err := a.store.GetOrder(ctx, payment.OrderID)
	if err != nil {
		a.logger.Warn("Failed to load order for payment notification",
			zap.Int64("order_id", payment.OrderID),
			zap.Error(err))
		return true, nil
	}

	deliver(ctx, a.notifier, a.logger, order.BuyerID, kind, payload)
	return true, nil
}

func paymentNotification(p *models.Payment, status models.PaymentStatus, amount decimal.Decimal, currency string) (string, map[string]any) {
	switch status {
	case models.PaymentStatusCaptured:
		return models.NotifyPaymentSucceeded, map[string]any{
			"order_id": p.OrderID,
			"amount":   p.Amount.StringFixed(2),
			"currency": p.Currency,
		}
	case models.PaymentStatusFailed:
		return models.NotifyPaymentFailed, map[string]any{
			"order_id": p.OrderID,
		}
	case models.PaymentStatusRefunded:
		if currency == "" {
			amount, currency = p.Amount, p.Currency
		}
		return models.NotifyPaymentRefunded, map[string]any{
			"order_id": p.OrderID,
			"amount":   amount.StringFixed(2),
			"currency": currency,
		}
	default:
		return "", nil
	}
}
