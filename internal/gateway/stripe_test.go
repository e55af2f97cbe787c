package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/models"
)

const testWebhookSecret = "whsec_test"

func signStripe(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newTestStripe(t *testing.T, handler http.HandlerFunc) *Stripe {
	t.Helper()

	cfg := StripeConfig{
		APIKey:        "sk_test_123",
		WebhookSecret: testWebhookSecret,
		Timeout:       5 * time.Second,
	}
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		cfg.BackendURL = srv.URL
	}
	return NewStripe(cfg, zap.NewNop())
}

func TestStripeCreateSession(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "kwd", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "12345", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[orderId]"))
		assert.Equal(t, "42", r.PostForm.Get("payment_intent_data[metadata][orderId]"))
		assert.Equal(t, "knet", r.PostForm.Get("payment_method_types[0]"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)
	})

	sess, err := s.CreateSession(context.Background(), SessionRequest{
		OrderID:    42,
		PaymentID:  9,
		Amount:     decimal.RequireFromString("12.345"),
		Currency:   "KWD",
		Method:     models.PaymentMethodKNET,
		SuccessURL: "https://shop.example/success",
		CancelURL:  "https://shop.example/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.Reference)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.RedirectURL)
}

func TestStripeCreateSessionError(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"type":"api_error","message":"boom"}}`)
	})

	_, err := s.CreateSession(context.Background(), SessionRequest{
		OrderID:  1,
		Amount:   decimal.NewFromInt(1),
		Currency: "USD",
		Method:   models.PaymentMethodCard,
	})
	assert.Error(t, err)
}

func TestStripeVerify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.PaymentStatus
	}{
		{"paid", `{"id":"cs_1","object":"checkout.session","payment_status":"paid","status":"complete"}`, models.PaymentStatusCaptured},
		{"expired", `{"id":"cs_1","object":"checkout.session","payment_status":"unpaid","status":"expired"}`, models.PaymentStatusCancelled},
		{"open", `{"id":"cs_1","object":"checkout.session","payment_status":"unpaid","status":"open"}`, models.PaymentStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/checkout/sessions/cs_1", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tt.body)
			})

			got, err := s.Verify(context.Background(), "cs_1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripeParseCheckoutCompleted(t *testing.T) {
	s := newTestStripe(t, nil)
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","amount_total":12340,"currency":"kwd","metadata":{"orderId":"42","paymentId":"7"}}}}`)

	evt, err := s.ParseEvent(context.Background(), payload, signStripe(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, EventCheckoutCompleted, evt.Type)
	assert.Equal(t, "cs_1", evt.Reference)
	assert.Equal(t, int64(42), evt.OrderID)
	assert.Equal(t, int64(7), evt.PaymentID)
	assert.Equal(t, "KWD", evt.Currency)
	assert.True(t, decimal.RequireFromString("12.34").Equal(evt.Amount))
}

func TestStripeParsePaymentFailed(t *testing.T) {
	s := newTestStripe(t, nil)
	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1","object":"payment_intent","amount":500,"currency":"usd","metadata":{"orderId":"8","paymentId":"31"}}}}`)

	evt, err := s.ParseEvent(context.Background(), payload, signStripe(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)

	assert.Empty(t, evt.Reference)
	assert.Equal(t, int64(8), evt.OrderID)
	assert.Equal(t, int64(31), evt.PaymentID)
	assert.True(t, decimal.RequireFromString("5").Equal(evt.Amount))
}

func TestStripeParseRefundLooksUpIntent(t *testing.T) {
	s := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_9","object":"payment_intent","metadata":{"orderId":"77","paymentId":"12"}}`)
	})
	payload := []byte(`{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge","amount_refunded":2500,"currency":"usd","payment_intent":"pi_9","metadata":{}}}}`)

	evt, err := s.ParseEvent(context.Background(), payload, signStripe(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, int64(77), evt.OrderID)
	assert.Equal(t, int64(12), evt.PaymentID)
	assert.Equal(t, "USD", evt.Currency)
	assert.True(t, decimal.RequireFromString("25").Equal(evt.Amount))
}

func TestStripeParseRejectsBadSignatures(t *testing.T) {
	s := newTestStripe(t, nil)
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	tests := []struct {
		name      string
		signature string
	}{
		{"empty", ""},
		{"wrong secret", signStripe(payload, "whsec_other", time.Now())},
		{"too old", signStripe(payload, testWebhookSecret, time.Now().Add(-time.Hour))},
		{"garbage header", "nonsense"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ParseEvent(context.Background(), payload, tt.signature)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1050), toMinorUnits(decimal.RequireFromString("10.50"), "USD"))
	assert.Equal(t, int64(10500), toMinorUnits(decimal.RequireFromString("10.50"), "kwd"))
	assert.True(t, decimal.RequireFromString("10.5").Equal(fromMinorUnits(10500, "KWD")))
	assert.True(t, decimal.RequireFromString("10.5").Equal(fromMinorUnits(1050, "SAR")))
}
