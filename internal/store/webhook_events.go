package store

import (
	"context"
	"fmt"
)

func (s *Store) IsWebhookEventProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM webhook_events WHERE provider = $1 AND event_id = $2)`,
		provider, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return exists, nil
}

// MarkWebhookEventProcessed records the event. It reports false if the
// event had already been recorded.
func (s *Store) MarkWebhookEventProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_events (provider, event_id, event_type, processed_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (provider, event_id) DO NOTHING`,
		provider, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
