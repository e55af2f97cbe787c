package models

// Role is a user role from the identity directory.
type Role string

const (
	RoleIndividual Role = "Individual"
	RoleShop       Role = "Shop"
	RoleAdmin      Role = "Admin"
	RoleSupplier   Role = "Supplier"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleIndividual, RoleShop, RoleAdmin, RoleSupplier:
		return true
	default:
		return false
	}
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending,
		OrderStatusAccepted,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks the linear order lifecycle. Cancelled is only
// reachable from Pending.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusAccepted || next == OrderStatusCancelled
	case OrderStatusAccepted:
		return next == OrderStatusShipped
	case OrderStatusShipped:
		return next == OrderStatusDelivered
	default:
		return false
	}
}

// OrderAction is a command a party can issue against an order.
type OrderAction string

const (
	ActionAccept          OrderAction = "accept"
	ActionShip            OrderAction = "ship"
	ActionConfirmDelivery OrderAction = "confirm-delivery"
	ActionCancel          OrderAction = "cancel"
)

// Transition returns the from/to pair an action drives.
func (a OrderAction) Transition() (from, to OrderStatus, ok bool) {
	switch a {
	case ActionAccept:
		return OrderStatusPending, OrderStatusAccepted, true
	case ActionShip:
		return OrderStatusAccepted, OrderStatusShipped, true
	case ActionConfirmDelivery:
		return OrderStatusShipped, OrderStatusDelivered, true
	case ActionCancel:
		return OrderStatusPending, OrderStatusCancelled, true
	default:
		return "", "", false
	}
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending,
		PaymentStatusAuthorized,
		PaymentStatusCaptured,
		PaymentStatusRefunded,
		PaymentStatusFailed,
		PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// IsExpectedTransition reports whether moving to next follows the normal
// gateway lifecycle. Reconciliation still applies unexpected transitions;
// this is only used to flag them.
func (s PaymentStatus) IsExpectedTransition(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusAuthorized ||
			next == PaymentStatusCaptured ||
			next == PaymentStatusFailed ||
			next == PaymentStatusCancelled
	case PaymentStatusAuthorized:
		return next == PaymentStatusCaptured ||
			next == PaymentStatusFailed ||
			next == PaymentStatusCancelled
	case PaymentStatusCaptured:
		return next == PaymentStatusRefunded
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodApplePay     PaymentMethod = "apple_pay"
	PaymentMethodKNET         PaymentMethod = "knet"
	PaymentMethodMada         PaymentMethod = "mada"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCard,
		PaymentMethodApplePay,
		PaymentMethodKNET,
		PaymentMethodMada,
		PaymentMethodBankTransfer:
		return true
	default:
		return false
	}
}

// PlanType is the revenue-share model a supplier agreed to at approval.
type PlanType string

const (
	PlanCommission   PlanType = "commission"
	PlanSubscription PlanType = "subscription"
)

func (p PlanType) IsValid() bool {
	return p == PlanCommission || p == PlanSubscription
}

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

func (s ApplicationStatus) IsValid() bool {
	return s == ApplicationPending || s == ApplicationApproved || s == ApplicationRejected
}

// Notification kinds sent to buyers.
const (
	NotifyOrderCreated     = "order_created"
	NotifyOrderAccepted    = "order_accepted"
	NotifyOrderShipped     = "order_shipped"
	NotifyOrderDelivered   = "order_delivered"
	NotifyOrderCancelled   = "order_cancelled"
	NotifyPaymentSucceeded = "payment_succeeded"
	NotifyPaymentFailed    = "payment_failed"
	NotifyPaymentRefunded  = "payment_refunded"
)
