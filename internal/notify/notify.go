// Package notify delivers buyer notifications. Delivery is fire-and-forget
// from the caller's point of view: a failure is logged and never rolls
// back the state change that triggered it.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, userID int64, kind string, payload map[string]any) error
}

// Logger writes each notification to the structured log.
type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) Notify(ctx context.Context, userID int64, kind string, payload map[string]any) error {
	l.logger.Info("notification",
		zap.Int64("user_id", userID),
		zap.String("kind", kind),
		zap.Any("payload", payload))
	return nil
}

// OutboxStore persists notifications for later delivery.
type OutboxStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
}

// Outbox records each notification in the notifications table.
type Outbox struct {
	store OutboxStore
}

func NewOutbox(store OutboxStore) *Outbox {
	return &Outbox{store: store}
}

func (o *Outbox) Notify(ctx context.Context, userID int64, kind string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	return o.store.InsertNotification(ctx, &models.Notification{
		UserID:  userID,
		Kind:    kind,
		Payload: payload,
	})
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID int64, kind string, payload map[string]any) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userID, kind, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
