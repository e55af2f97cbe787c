package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/notify"
	"github.com/safar/rain-market/internal/pricing"
	"github.com/safar/rain-market/internal/store"
)

// TransitionResult tells the caller whether a command changed the order.
type TransitionResult string

const (
	Applied TransitionResult = "applied"
	NoOp    TransitionResult = "no_op"
)

type CreateOrderInput struct {
	BuyerID           int64
	OfferID           int64
	Quantity          int
	ShippingAddressID *int64
}

type OrderService struct {
	store    Store
	pricing  *pricing.Engine
	notifier notify.Notifier
	logger   *zap.Logger

	currency string
	rates    map[string]decimal.Decimal
}

// NewOrderService creates the order service. currency is the settlement
// currency; rates converts it into display currencies.
func NewOrderService(s Store, engine *pricing.Engine, notifier notify.Notifier, logger *zap.Logger, currency string, rates map[string]decimal.Decimal) *OrderService {
	return &OrderService{
		store:    s,
		pricing:  engine,
		notifier: notifier,
		logger:   logger,
		currency: currency,
		rates:    rates,
	}
}

// Quote prices a prospective purchase for the buyer without reserving
// anything.
func (s *OrderService) Quote(ctx context.Context, buyerID, offerID int64, quantity int) (pricing.Line, error) {
	buyer, err := s.store.GetUser(ctx, buyerID)
	if err != nil {
		return pricing.Line{}, err
	}

	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return pricing.Line{}, err
	}

	return s.pricing.ComputeLine(ctx, *offer, buyer.PricingRole(), quantity)
}

// CreateOrder prices one offer line for the buyer and persists the order,
// its single item and the stock reservation atomically.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if in.Quantity <= 0 {
		return nil, pricing.ErrInvalidQuantity
	}

	buyer, err := s.store.GetUser(ctx, in.BuyerID)
	if err != nil {
		return nil, err
	}

	offer, err := s.store.GetOffer(ctx, in.OfferID)
	if err != nil {
		return nil, err
	}

	plan, err := s.pricing.PlanFor(ctx, offer.SupplierID)
	if err != nil {
		return nil, err
	}

	role := buyer.PricingRole()
	order, err := s.store.CreateOrder(ctx, store.CreateOrderRequest{
		BuyerID:           in.BuyerID,
		OfferID:           in.OfferID,
		Quantity:          in.Quantity,
		ShippingAddressID: in.ShippingAddressID,
	}, func(locked models.Offer) (pricing.Line, error) {
		return pricing.Quote(locked, role, in.Quantity, plan)
	})
	if err != nil {
		if errors.Is(err, database.ErrInvariantViolation) {
			s.logger.Error("Order ledger invariant violated",
				zap.Int64("buyer_id", in.BuyerID),
				zap.Int64("offer_id", in.OfferID),
				zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	deliver(ctx, s.notifier, s.logger, order.BuyerID, models.NotifyOrderCreated, map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount.StringFixed(2),
		"currency":     s.currency,
	})

	return order, nil
}

// GetOrder returns the order if the actor is its buyer or supplies at
// least one of its items.
func (s *OrderService) GetOrder(ctx context.Context, orderID, actorID int64) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if some, _ := order.SupplierRole(actorID); order.BuyerID != actorID && !some {
		s.logForbidden(orderID, actorID, "view")
		return nil, ErrForbidden
	}

	return order, nil
}

// TransitionOrder applies action to the order on behalf of actorID.
// Commands issued against an order in the wrong state are a NoOp: nothing
// is written and nobody is notified.
func (s *OrderService) TransitionOrder(ctx context.Context, orderID, actorID int64, action models.OrderAction) (*models.Order, TransitionResult, error) {
	from, to, ok := action.Transition()
	if !ok {
		return nil, "", ErrInvalidAction
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, "", err
	}

	if !authorized(order, actorID, action) {
		s.logForbidden(orderID, actorID, string(action))
		return nil, "", ErrForbidden
	}

	if !order.Status.CanTransitionTo(to) {
		return order, NoOp, nil
	}

	applied, err := s.apply(ctx, order, from, to)
	if err != nil {
		return nil, "", err
	}
	if !applied {
		current, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return nil, "", err
		}
		return current, NoOp, nil
	}

	order.Status = to
	s.logger.Info("Order status changed",
		zap.Int64("order_id", orderID),
		zap.Int64("actor_id", actorID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	deliver(ctx, s.notifier, s.logger, order.BuyerID, transitionNotification(to), map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       string(to),
	})

	return order, Applied, nil
}

// apply persists the transition. Cancelling also releases the reserved
// stock and the pending payment attempts in the same transaction.
func (s *OrderService) apply(ctx context.Context, order *models.Order, from, to models.OrderStatus) (bool, error) {
	if to != models.OrderStatusCancelled {
		return s.store.TransitionOrder(ctx, order.ID, from, to)
	}

	res, err := s.store.CancelOrder(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if res.Applied {
		s.logger.Info("Order cancelled",
			zap.Int64("order_id", order.ID),
			zap.Int("restocked", res.Restocked),
			zap.Int64("payments_cancelled", res.PaymentsCancelled))
	}
	return res.Applied, nil
}

// authorized checks that actorID is the party allowed to issue action:
// suppliers of every item accept and ship, the buyer confirms delivery
// and cancels.
func authorized(order *models.Order, actorID int64, action models.OrderAction) bool {
	switch action {
	case models.ActionAccept, models.ActionShip:
		_, all := order.SupplierRole(actorID)
		return all
	case models.ActionConfirmDelivery, models.ActionCancel:
		return order.BuyerID == actorID
	default:
		return false
	}
}

func transitionNotification(to models.OrderStatus) string {
	switch to {
	case models.OrderStatusAccepted:
		return models.NotifyOrderAccepted
	case models.OrderStatusShipped:
		return models.NotifyOrderShipped
	case models.OrderStatusDelivered:
		return models.NotifyOrderDelivered
	default:
		return models.NotifyOrderCancelled
	}
}

func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID int64, cursor string, limit int) (*store.CursorPage, error) {
	return s.store.ListOrdersCursor(ctx, buyerID, cursor, limit)
}

func (s *OrderService) ListSupplierOrders(ctx context.Context, supplierID int64, cursor string, limit int) (*store.CursorPage, error) {
	return s.store.ListSupplierOrdersCursor(ctx, supplierID, cursor, limit)
}

// ConvertTotal expresses amount, held in the settlement currency, in the
// requested display currency using the configured rate table.
func (s *OrderService) ConvertTotal(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if currency == "" || currency == s.currency {
		return amount, nil
	}

	rate, ok := s.rates[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	return amount.Mul(rate).Round(2), nil
}

func (s *OrderService) SettlementCurrency() string {
	return s.currency
}

func (s *OrderService) logForbidden(orderID, actorID int64, action string) {
	s.logger.Info("Forbidden order access",
		zap.Int64("order_id", orderID),
		zap.Int64("actor_id", actorID),
		zap.String("action", action))
}

// deliver sends a notification and only logs a failure; the state change
// that triggered it stands either way.
func deliver(ctx context.Context, n notify.Notifier, logger *zap.Logger, userID int64, kind string, payload map[string]any) {
	if err := n.Notify(ctx, userID, kind, payload); err != nil {
		logger.Warn("Failed to deliver notification",
			zap.Int64("user_id", userID),
			zap.String("kind", kind),
			zap.Error(err))
	}
}
