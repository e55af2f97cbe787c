package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safar/rain-market/internal/models"
)

const MockSignatureHeader = "X-Mock-Signature"

// Mock is an in-process processor for development. Every session it opens
// is considered paid. Webhooks are signed with a hex HMAC-SHA256 of the raw
// body.
type Mock struct {
	secret []byte

	mu       sync.RWMutex
	sessions map[string]int64
}

func NewMock(webhookSecret string) *Mock {
	return &Mock{
		secret:   []byte(webhookSecret),
		sessions: make(map[string]int64),
	}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) SignatureHeader() string { return MockSignatureHeader }

func (m *Mock) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	reference := strings.ReplaceAll(uuid.NewString(), "-", "")

	redirect, err := url.Parse(req.SuccessURL)
	if err != nil {
		return Session{}, fmt.Errorf("parse success url: %w", err)
	}
	q := redirect.Query()
	q.Set("ref", reference)
	redirect.RawQuery = q.Encode()

	m.mu.Lock()
	m.sessions[reference] = req.OrderID
	m.mu.Unlock()

	return Session{Reference: reference, RedirectURL: redirect.String()}, nil
}

func (m *Mock) Verify(ctx context.Context, reference string) (models.PaymentStatus, error) {
	m.mu.RLock()
	_, ok := m.sessions[reference]
	m.mu.RUnlock()

	if !ok {
		return "", ErrUnknownReference
	}
	return models.PaymentStatusCaptured, nil
}

// MockEvent is the JSON body the mock processor posts to the webhook.
type MockEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Reference string          `json:"reference,omitempty"`
	PaymentID int64           `json:"payment_id,omitempty"`
	OrderID   int64           `json:"order_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
}

func (m *Mock) ParseEvent(ctx context.Context, payload []byte, signature string) (Event, error) {
	expected, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, m.mac(payload)) {
		return Event{}, ErrInvalidSignature
	}

	var raw MockEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return Event{}, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}

	return Event{
		ID:        raw.ID,
		Type:      raw.Type,
		Reference: raw.Reference,
		PaymentID: raw.PaymentID,
		OrderID:   raw.OrderID,
		Amount:    raw.Amount,
		Currency:  strings.ToUpper(raw.Currency),
	}, nil
}

// Sign returns the signature header value for payload.
func (m *Mock) Sign(payload []byte) string {
	return hex.EncodeToString(m.mac(payload))
}

func (m *Mock) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, m.secret)
	h.Write(payload)
	return h.Sum(nil)
}
