// ABOUTME: Append-only audit trail of webhook delivery attempts
// ABOUTME: One record per dispatch, written once and never mutated

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordDelivery appends one delivery attempt record.
func (s *SQLiteStore) RecordDelivery(ctx context.Context, delivery *WebhookDelivery) error {
	if delivery.ID == "" {
		delivery.ID = uuid.New().String()
	}
	if delivery.DeliveredAt.IsZero() {
		delivery.DeliveredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO webhook_deliveries (id, subscription_id, event_type, payload, status_code, response_body, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		delivery.ID,
		delivery.SubscriptionID,
		delivery.EventType,
		delivery.Payload,
		delivery.StatusCode,
		delivery.ResponseBody,
		delivery.DeliveredAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery record: %w", err)
	}

	s.logger.Debug("recorded webhook delivery",
		"delivery_id", delivery.ID,
		"subscription_id", delivery.SubscriptionID,
		"event_type", delivery.EventType,
		"status_code", delivery.StatusCode)
	return nil
}

// ListDeliveries returns the most recent delivery records for a
// subscription, newest first.
func (s *SQLiteStore) ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]*WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT id, subscription_id, event_type, payload, status_code, response_body, delivered_at
		FROM webhook_deliveries
		WHERE subscription_id = ?
		ORDER BY delivered_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*WebhookDelivery
	for rows.Next() {
		d := &WebhookDelivery{}
		var deliveredAt string
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.Payload, &d.StatusCode, &d.ResponseBody, &deliveredAt); err != nil {
			return nil, fmt.Errorf("scanning delivery row: %w", err)
		}
		d.DeliveredAt, err = time.Parse(time.RFC3339Nano, deliveredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing delivered_at: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery rows: %w", err)
	}
	return deliveries, nil
}
