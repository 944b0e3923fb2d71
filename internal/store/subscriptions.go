// ABOUTME: Webhook subscription CRUD plus the dispatcher's read-only resolution query
// ABOUTME: Event-type sets are stored as a JSON array column

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSubscription inserts a new webhook subscription.
func (s *SQLiteStore) CreateSubscription(ctx context.Context, sub *WebhookSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = now
	}

	types, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return fmt.Errorf("encoding event types: %w", err)
	}

	query := `
		INSERT INTO webhook_subscriptions (id, owner, target_url, secret, event_types, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		sub.ID,
		sub.Owner,
		sub.TargetURL,
		sub.Secret,
		string(types),
		boolToInt(sub.IsActive),
		sub.CreatedAt.Format(time.RFC3339Nano),
		sub.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}

	s.logger.Debug("created webhook subscription",
		"subscription_id", sub.ID,
		"owner", sub.Owner,
		"target_url", sub.TargetURL)
	return nil
}

// GetSubscription retrieves a subscription by id.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetSubscription(ctx context.Context, id string) (*WebhookSubscription, error) {
	query := `
		SELECT id, owner, target_url, secret, event_types, is_active, created_at, updated_at
		FROM webhook_subscriptions
		WHERE id = ?
	`

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions returns all subscriptions for an owner, newest first.
func (s *SQLiteStore) ListSubscriptions(ctx context.Context, owner string) ([]*WebhookSubscription, error) {
	query := `
		SELECT id, owner, target_url, secret, event_types, is_active, created_at, updated_at
		FROM webhook_subscriptions
		WHERE owner = ?
		ORDER BY created_at DESC
	`

	return s.querySubscriptions(ctx, query, owner)
}

// UpdateSubscription overwrites the mutable fields of a subscription.
// Returns ErrNotFound if the subscription doesn't exist.
func (s *SQLiteStore) UpdateSubscription(ctx context.Context, sub *WebhookSubscription) error {
	sub.UpdatedAt = time.Now().UTC()

	types, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return fmt.Errorf("encoding event types: %w", err)
	}

	query := `
		UPDATE webhook_subscriptions
		SET target_url = ?, secret = ?, event_types = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		sub.TargetURL,
		sub.Secret,
		string(types),
		boolToInt(sub.IsActive),
		sub.UpdatedAt.Format(time.RFC3339Nano),
		sub.ID,
	)
	if err != nil {
		return fmt.Errorf("updating subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubscription removes a subscription.
// Returns ErrNotFound if the subscription doesn't exist.
func (s *SQLiteStore) DeleteSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindActiveSubscriptions resolves the active subscriptions of one owner
// that include the given event type. No matches is a normal, silent outcome.
func (s *SQLiteStore) FindActiveSubscriptions(ctx context.Context, owner, eventType string) ([]*WebhookSubscription, error) {
	query := `
		SELECT id, owner, target_url, secret, event_types, is_active, created_at, updated_at
		FROM webhook_subscriptions
		WHERE owner = ? AND is_active = 1
	`

	subs, err := s.querySubscriptions(ctx, query, owner)
	if err != nil {
		return nil, err
	}

	// Event-type membership is filtered here rather than in SQL; the set is
	// a JSON array column and per-owner subscription counts are small.
	matched := subs[:0]
	for _, sub := range subs {
		if sub.SubscribesTo(eventType) {
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

// querySubscriptions executes a subscription query and scans all rows.
func (s *SQLiteStore) querySubscriptions(ctx context.Context, query string, args ...any) ([]*WebhookSubscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*WebhookSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription row: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscription rows: %w", err)
	}
	return subs, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*WebhookSubscription, error) {
	sub := &WebhookSubscription{}
	var types string
	var isActive int
	var createdAt, updatedAt string

	if err := row.Scan(&sub.ID, &sub.Owner, &sub.TargetURL, &sub.Secret, &types, &isActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(types), &sub.EventTypes); err != nil {
		return nil, fmt.Errorf("decoding event types: %w", err)
	}
	sub.IsActive = isActive != 0

	var err error
	sub.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	sub.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return sub, nil
}
