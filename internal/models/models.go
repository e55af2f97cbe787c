package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Roles     []Role    `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PricingRole picks the single role that drives pricing for a user
// holding several roles. Shop wins over Admin, Admin over Individual.
func (u *User) PricingRole() Role {
	switch {
	case u.HasRole(RoleShop):
		return RoleShop
	case u.HasRole(RoleAdmin):
		return RoleAdmin
	default:
		return RoleIndividual
	}
}

type Product struct {
	ID          int64     `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Offer struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	SupplierID    int64           `json:"supplier_id"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	StockQuantity int             `json:"stock_quantity"`
	MinOrderQty   int             `json:"min_order_qty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

type Order struct {
	ID                int64           `json:"id"`
	BuyerID           int64           `json:"buyer_id"`
	OrderNumber       string          `json:"order_number"`
	Status            OrderStatus     `json:"status"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	ShippingAddressID *int64          `json:"shipping_address_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
	Items             []OrderItem     `json:"items,omitempty"`
}

// SupplierRole reports whether supplierID owns the offer behind at least
// one item, and whether it owns every item.
func (o *Order) SupplierRole(supplierID int64) (some, all bool) {
	if len(o.Items) == 0 {
		return false, false
	}

	all = true
	for _, item := range o.Items {
		if item.SupplierID == supplierID {
			some = true
		} else {
			all = false
		}
	}
	return some, all
}

// OrderItem is a settlement ledger row. It is written once at order
// creation and never updated.
type OrderItem struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"order_id"`
	OfferID          int64           `json:"offer_id"`
	SupplierID       int64           `json:"supplier_id"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	NetToSupplier    decimal.Decimal `json:"net_to_supplier"`
	CreatedAt        time.Time       `json:"created_at"`
}

type SupplierApplication struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	DisplayName string            `json:"display_name"`
	CompanyName string            `json:"company_name"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone"`
	PlanType    PlanType          `json:"plan_type"`
	Status      ApplicationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	ReviewedAt  *time.Time        `json:"reviewed_at,omitempty"`
	ReviewerID  *int64            `json:"reviewer_id,omitempty"`
	ReviewNotes *string           `json:"review_notes,omitempty"`
}

// Payment is one checkout attempt against an order.
type Payment struct {
	ID                int64           `json:"id"`
	OrderID           int64           `json:"order_id"`
	Method            PaymentMethod   `json:"method"`
	Status            PaymentStatus   `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Provider          string          `json:"provider"`
	ProviderReference *string         `json:"provider_reference,omitempty"`
	SuccessURL        string          `json:"-"`
	CancelURL         string          `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
}

type Notification struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// EarningsLine is one order item as seen by the supplier settlement report.
type EarningsLine struct {
	OrderID          int64           `json:"order_id"`
	OrderDate        time.Time       `json:"order_date"`
	ProductName      string          `json:"product_name"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	NetToSupplier    decimal.Decimal `json:"net_to_supplier"`
}

// EarningsTotals aggregates every settlement line in a report range.
type EarningsTotals struct {
	Lines      int
	Gross      decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal
}
