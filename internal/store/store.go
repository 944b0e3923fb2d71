// ABOUTME: Store interface and data types for pulse-gateway persistence
// ABOUTME: Defines change-feed reads, webhook subscriptions, and delivery audit records

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Conversation is a platform conversation row. Written by the CRUD layer;
// this subsystem only reads it to detect changes.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}

// Message role constants
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Message is a single conversation message row.
type Message struct {
	ID             string
	ConversationID string
	UserID         string
	Role           string // "user" or "agent"
	Content        string
	CreatedAt      time.Time
}

// Agent is a platform agent row; only the active count matters to the poller.
type Agent struct {
	ID        string
	UserID    string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookSubscription is an externally registered delivery endpoint.
type WebhookSubscription struct {
	ID         string
	Owner      string
	TargetURL  string
	Secret     string
	EventTypes []string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SubscribesTo reports whether the subscription wants the given event type.
func (s *WebhookSubscription) SubscribesTo(eventType string) bool {
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// WebhookDelivery is the append-only audit record of one dispatch attempt.
// StatusCode is 0 when the request never completed; ResponseBody is a
// best-effort capture, truncated. Delivery records are never mutated.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	Payload        string
	StatusCode     int
	ResponseBody   string
	DeliveredAt    time.Time
}

// Store defines the persistence operations used by the event distribution
// subsystem. The conversation/message/agent side is written by CRUD
// endpoints outside this core and consumed read-only by the change poller.
type Store interface {
	// Change feed reads (per-user, created-at watermark)
	ListConversationsCreatedSince(ctx context.Context, userID string, since time.Time) ([]*Conversation, error)
	ListMessagesCreatedSince(ctx context.Context, userID string, since time.Time) ([]*Message, error)
	CountActiveAgents(ctx context.Context, userID string) (int, error)

	// Record writes (the CRUD layer's surface, also used for seeding tests)
	CreateConversation(ctx context.Context, conv *Conversation) error
	CreateMessage(ctx context.Context, msg *Message) error
	CreateAgent(ctx context.Context, agent *Agent) error

	// Webhook subscriptions
	CreateSubscription(ctx context.Context, sub *WebhookSubscription) error
	GetSubscription(ctx context.Context, id string) (*WebhookSubscription, error)
	ListSubscriptions(ctx context.Context, owner string) ([]*WebhookSubscription, error)
	UpdateSubscription(ctx context.Context, sub *WebhookSubscription) error
	DeleteSubscription(ctx context.Context, id string) error
	FindActiveSubscriptions(ctx context.Context, owner, eventType string) ([]*WebhookSubscription, error)

	// Webhook delivery audit trail (append-only)
	RecordDelivery(ctx context.Context, delivery *WebhookDelivery) error
	ListDeliveries(ctx context.Context, subscriptionID string, limit int) ([]*WebhookDelivery, error)

	// Close releases any resources held by the store
	Close() error
}
