// Package pricing computes the charged unit price and the commission split
// for a single order line.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/safar/rain-market/internal/models"
	"github.com/shopspring/decimal"
)

const (
	// WholesaleThreshold is the quantity at which Shop buyers pay the
	// supplier's list price.
	WholesaleThreshold = 50
	moneyPlaces        = 2
)

var (
	retailMarkup   = decimal.RequireFromString("1.02")
	commissionRate = decimal.RequireFromString("0.02")
)

// Quote rejects lines with these errors before any figure is computed.
var (
	ErrOfferInactive        = errors.New("offer inactive")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrQuantityBelowMinimum = errors.New("quantity below minimum order quantity")
)

// Line holds the settlement figures frozen onto an order item.
type Line struct {
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	NetToSupplier    decimal.Decimal `json:"net_to_supplier"`
}

// PlanLookup returns the plan of a supplier's most recently approved
// application. ok is false when the supplier has no approved application.
type PlanLookup interface {
	LatestApprovedPlan(ctx context.Context, supplierID int64) (plan models.PlanType, ok bool, err error)
}

// Engine prices lines with the supplier's current commission plan.
type Engine struct {
	plans PlanLookup
}

// NewEngine returns an Engine that reads supplier plans from plans.
func NewEngine(plans PlanLookup) *Engine {
	return &Engine{plans: plans}
}

// PlanFor resolves the commission plan for a supplier, defaulting to the
// commission plan when nothing has been approved.
func (e *Engine) PlanFor(ctx context.Context, supplierID int64) (models.PlanType, error) {
	plan, ok, err := e.plans.LatestApprovedPlan(ctx, supplierID)
	if err != nil {
		return "", fmt.Errorf("lookup supplier plan: %w", err)
	}
	if !ok {
		return models.PlanCommission, nil
	}
	return plan, nil
}

// ComputeLine prices quantity units of offer for a buyer holding role.
func (e *Engine) ComputeLine(ctx context.Context, offer models.Offer, role models.Role, quantity int) (Line, error) {
	plan, err := e.PlanFor(ctx, offer.SupplierID)
	if err != nil {
		return Line{}, err
	}
	return Quote(offer, role, quantity, plan)
}

// Quote prices one line without touching any collaborator.
func Quote(offer models.Offer, role models.Role, quantity int, plan models.PlanType) (Line, error) {
	if !offer.IsActive {
		return Line{}, ErrOfferInactive
	}
	if quantity <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	if quantity < offer.MinOrderQty {
		return Line{}, ErrQuantityBelowMinimum
	}

	unitPrice := UnitPrice(offer.Price, role, quantity)
	lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	rate := CommissionRate(plan)
	commission := lineTotal.Mul(rate).Round(moneyPlaces)

	return Line{
		UnitPrice:        unitPrice,
		LineTotal:        lineTotal,
		CommissionRate:   rate,
		CommissionAmount: commission,
		NetToSupplier:    lineTotal.Sub(commission),
	}, nil
}

// UnitPrice is the list price for Shop buyers at wholesale quantity and
// the list price plus the retail markup for everyone else.
func UnitPrice(listPrice decimal.Decimal, role models.Role, quantity int) decimal.Decimal {
	if role == models.RoleShop && quantity >= WholesaleThreshold {
		return listPrice
	}
	return listPrice.Mul(retailMarkup).Round(moneyPlaces)
}

// CommissionRate is the platform's share under plan. Subscription
// suppliers pay none.
func CommissionRate(plan models.PlanType) decimal.Decimal {
	if plan == models.PlanCommission {
		return commissionRate
	}
	return decimal.Zero
}

// Total sums line totals; an order's stored total must always equal it.
func Total(lines ...Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return total
}
