package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/models"
)

const StripeSignatureHeader = "Stripe-Signature"

const (
	metadataOrderID   = "orderId"
	metadataPaymentID = "paymentId"
	metadataMethod    = "method"
)

// threeDecimalCurrencies are charged in thousandths by Stripe.
var threeDecimalCurrencies = map[string]bool{
	"BHD": true,
	"JOD": true,
	"KWD": true,
	"OMR": true,
	"TND": true,
}

type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
	// BackendURL overrides the Stripe API base URL.
	BackendURL string
}

type Stripe struct {
	sessions      *session.Client
	intents       *paymentintent.Client
	webhookSecret string
	logger        *zap.Logger
}

func NewStripe(cfg StripeConfig, logger *zap.Logger) *Stripe {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &Stripe{
		sessions:      &session.Client{B: backend, Key: cfg.APIKey},
		intents:       &paymentintent.Client{B: backend, Key: cfg.APIKey},
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) SignatureHeader() string { return StripeSignatureHeader }

func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	metadata := map[string]string{
		metadataOrderID:   strconv.FormatInt(req.OrderID, 10),
		metadataPaymentID: strconv.FormatInt(req.PaymentID, 10),
		metadataMethod:    string(req.Method),
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(appendQuery(req.SuccessURL, "ref={CHECKOUT_SESSION_ID}")),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(toMinorUnits(req.Amount, req.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Order #%d", req.OrderID)),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		PaymentMethodTypes: stripe.StringSlice(paymentMethodTypes(req.Method)),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	cs, err := s.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("create stripe checkout session: %w", err)
	}

	return Session{Reference: cs.ID, RedirectURL: cs.URL}, nil
}

// Verify reads the checkout session. A paid session is Captured, an
// expired one Cancelled, anything else still Pending.
func (s *Stripe) Verify(ctx context.Context, reference string) (models.PaymentStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := s.sessions.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return "", ErrUnknownReference
		}
		return "", fmt.Errorf("get stripe checkout session: %w", err)
	}

	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return models.PaymentStatusCaptured, nil
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		return models.PaymentStatusCancelled, nil
	default:
		return models.PaymentStatusPending, nil
	}
}

func (s *Stripe) ParseEvent(ctx context.Context, payload []byte, signature string) (Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return Event{}, ErrInvalidSignature
		}
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.Data == nil {
		return Event{}, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, evt.ID)
	}

	out := Event{ID: evt.ID, Type: string(evt.Type)}

	switch out.Type {
	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		out.Reference = cs.ID
		out.OrderID, out.PaymentID = idsFrom(cs.Metadata)
		out.Currency = strings.ToUpper(string(cs.Currency))
		out.Amount = fromMinorUnits(cs.AmountTotal, out.Currency)

	case EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		out.OrderID, out.PaymentID = idsFrom(pi.Metadata)
		out.Currency = strings.ToUpper(string(pi.Currency))
		out.Amount = fromMinorUnits(pi.Amount, out.Currency)

	case EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		out.OrderID, out.PaymentID = idsFrom(ch.Metadata)
		if out.OrderID == 0 && ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
			out.OrderID, out.PaymentID = s.idsFromIntent(ctx, ch.PaymentIntent.ID)
		}
		out.Currency = strings.ToUpper(string(ch.Currency))
		out.Amount = fromMinorUnits(ch.AmountRefunded, out.Currency)
	}

	return out, nil
}

// idsFromIntent looks up the order and payment ids on the payment intent.
// Lookup failures leave the event unresolved rather than failing it.
func (s *Stripe) idsFromIntent(ctx context.Context, intentID string) (orderID, paymentID int64) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(intentID, params)
	if err != nil {
		s.logger.Warn("failed to load payment intent for refund",
			zap.String("payment_intent", intentID),
			zap.Error(err))
		return 0, 0
	}
	return idsFrom(pi.Metadata)
}

// idsFrom reads the order and payment ids CreateSession stored in the
// metadata. Missing or malformed values come back as zero.
func idsFrom(metadata map[string]string) (orderID, paymentID int64) {
	return metadataID(metadata, metadataOrderID), metadataID(metadata, metadataPaymentID)
}

func metadataID(metadata map[string]string, key string) int64 {
	id, err := strconv.ParseInt(metadata[key], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func paymentMethodTypes(method models.PaymentMethod) []string {
	switch method {
	case models.PaymentMethodKNET:
		return []string{"knet"}
	case models.PaymentMethodBankTransfer:
		return []string{"customer_balance"}
	default:
		// Apple Pay and Mada are both card rails on Stripe.
		return []string{"card"}
	}
}

func minorUnitExponent(currency string) int32 {
	if threeDecimalCurrencies[strings.ToUpper(currency)] {
		return 3
	}
	return 2
}

func toMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(minorUnitExponent(currency)).Round(0).IntPart()
}

func fromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -minorUnitExponent(currency))
}

func appendQuery(rawURL, query string) string {
	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + query
	}
	return rawURL + "?" + query
}
