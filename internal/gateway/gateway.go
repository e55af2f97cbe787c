// Package gateway talks to hosted payment processors: it opens checkout
// sessions, verifies and decodes their webhook callbacks, and queries the
// authoritative status of a session.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/safar/rain-market/internal/models"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrUnknownReference = errors.New("unknown payment reference")
)

// Event types shared by every adapter. The mock provider emits the same
// names Stripe uses.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventChargeRefunded    = "charge.refunded"
)

type SessionRequest struct {
	OrderID    int64
	PaymentID  int64
	Amount     decimal.Decimal
	Currency   string
	Method     models.PaymentMethod
	SuccessURL string
	CancelURL  string
}

type Session struct {
	Reference   string
	RedirectURL string
}

// Event is a verified webhook callback reduced to what reconciliation
// needs. Reference, PaymentID and OrderID are all optional. PaymentID is
// the attempt id echoed back from the session metadata.
type Event struct {
	ID        string
	Type      string
	Reference string
	PaymentID int64
	OrderID   int64
	Amount    decimal.Decimal
	Currency  string
}

// Status maps the event type to the payment status it asserts. ok is
// false for event types reconciliation ignores.
func (e Event) Status() (status models.PaymentStatus, ok bool) {
	switch e.Type {
	case EventCheckoutCompleted:
		return models.PaymentStatusCaptured, true
	case EventPaymentFailed:
		return models.PaymentStatusFailed, true
	case EventChargeRefunded:
		return models.PaymentStatusRefunded, true
	default:
		return "", false
	}
}

type Gateway interface {
	Name() string
	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	ParseEvent(ctx context.Context, payload []byte, signature string) (Event, error)
	Verify(ctx context.Context, reference string) (models.PaymentStatus, error)
}
