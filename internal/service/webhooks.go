package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/gateway"
	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/notify"
)

// WebhookOutcome describes what reconciliation did with an accepted event.
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookUnchanged WebhookOutcome = "unchanged"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookUnmatched WebhookOutcome = "unmatched"
)

// Reconciler maps signed gateway callbacks onto payment records. Delivery
// is at-least-once and unordered.
type Reconciler struct {
	store   Store
	gateway gateway.Gateway
	logger  *zap.Logger
	applier *statusApplier
}

func NewReconciler(s Store, gw gateway.Gateway, notifier notify.Notifier, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:   s,
		gateway: gw,
		logger:  logger,
		applier: &statusApplier{store: s, notifier: notifier, logger: logger},
	}
}

// SignatureHeader names the request header carrying the signature the
// configured gateway expects.
func (r *Reconciler) SignatureHeader() string {
	return r.gateway.SignatureHeader()
}

// HandleWebhook verifies and applies one callback. Only signature and
// parse failures are returned as gateway errors; events that match no
// payment or carry an unknown type are accepted with an outcome so the
// gateway stops redelivering them. Any other error is internal and the
// gateway should retry.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	evt, err := r.gateway.ParseEvent(ctx, payload, signature)
	if err != nil {
		r.logger.Warn("Rejected payment webhook",
			zap.String("provider", r.gateway.Name()),
			zap.Error(err))
		return "", err
	}

	provider := r.gateway.Name()
	seen, err := r.store.IsWebhookEventProcessed(ctx, provider, evt.ID)
	if err != nil {
		return "", err
	}
	if seen {
		r.logger.Debug("Duplicate payment webhook", zap.String("event_id", evt.ID))
		return WebhookDuplicate, nil
	}

	status, ok := evt.Status()
	if !ok {
		r.logger.Debug("Ignored payment webhook",
			zap.String("event_id", evt.ID),
			zap.String("type", evt.Type))
		if _, err := r.store.MarkWebhookEventProcessed(ctx, provider, evt.ID, evt.Type); err != nil {
			return "", err
		}
		return WebhookIgnored, nil
	}

	payment, err := r.resolvePayment(ctx, evt)
	if err != nil {
		if errors.Is(err, database.ErrPaymentNotFound) {
			r.logger.Info("Payment webhook matched no payment",
				zap.String("event_id", evt.ID),
				zap.String("type", evt.Type),
				zap.String("reference", evt.Reference),
				zap.Int64("order_id", evt.OrderID))
			return WebhookUnmatched, nil
		}
		return "", err
	}

	changed, err := r.applier.apply(ctx, payment, status, evt.Amount, evt.Currency)
	if err != nil {
		return "", err
	}

	if _, err := r.store.MarkWebhookEventProcessed(ctx, provider, evt.ID, evt.Type); err != nil {
		return "", err
	}

	if !changed {
		return WebhookUnchanged, nil
	}
	return WebhookApplied, nil
}

// resolvePayment finds the attempt the event is about: by gateway
// reference, then by the payment id echoed from the session metadata, and
// only then the order's latest attempt. The last fallback covers events
// that arrive before the reference is stored and carry no payment id.
func (r *Reconciler) resolvePayment(ctx context.Context, evt gateway.Event) (*models.Payment, error) {
	if evt.Reference != "" {
		payment, err := r.store.GetPaymentByReference(ctx, evt.Reference)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, database.ErrPaymentNotFound) {
			return nil, err
		}
	}

	if evt.PaymentID != 0 {
		payment, err := r.store.GetPayment(ctx, evt.PaymentID)
		switch {
		case err == nil && (evt.OrderID == 0 || payment.OrderID == evt.OrderID):
			return payment, nil
		case err == nil:
			r.logger.Warn("Payment webhook payment id belongs to another order",
				zap.String("event_id", evt.ID),
				zap.Int64("payment_id", evt.PaymentID),
				zap.Int64("order_id", evt.OrderID))
		case !errors.Is(err, database.ErrPaymentNotFound):
			return nil, err
		}
	}

	if evt.OrderID == 0 {
		return nil, database.ErrPaymentNotFound
	}
	return r.store.LatestPaymentForOrder(ctx, evt.OrderID)
}
