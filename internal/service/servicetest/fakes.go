package servicetest

import (
	"context"
	"sync"

	"github.com/safar/rain-market/internal/gateway"
	"github.com/safar/rain-market/internal/models"
)

type Notification struct {
	UserID  int64
	Kind    string
	Payload map[string]any
}

// RecordingNotifier keeps every notification it is asked to send. Err, if
// set, is returned after recording.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (n *RecordingNotifier) Notify(ctx context.Context, userID int64, kind string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, Notification{UserID: userID, Kind: kind, Payload: payload})
	return n.Err
}

func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]Notification(nil), n.sent...)
}

// Count returns how many notifications of kind were sent.
func (n *RecordingNotifier) Count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			count++
		}
	}
	return count
}

// StubGateway is the mock gateway with overridable session creation and
// verification.
type StubGateway struct {
	*gateway.Mock

	CreateSessionFunc func(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error)
	VerifyFunc        func(ctx context.Context, reference string) (models.PaymentStatus, error)

	mu       sync.Mutex
	requests []gateway.SessionRequest
}

func NewStubGateway(webhookSecret string) *StubGateway {
	return &StubGateway{Mock: gateway.NewMock(webhookSecret)}
}

func (g *StubGateway) CreateSession(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.CreateSessionFunc != nil {
		return g.CreateSessionFunc(ctx, req)
	}
	return g.Mock.CreateSession(ctx, req)
}

func (g *StubGateway) Verify(ctx context.Context, reference string) (models.PaymentStatus, error) {
	if g.VerifyFunc != nil {
		return g.VerifyFunc(ctx, reference)
	}
	return g.Mock.Verify(ctx, reference)
}

func (g *StubGateway) Requests() []gateway.SessionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]gateway.SessionRequest(nil), g.requests...)
}
