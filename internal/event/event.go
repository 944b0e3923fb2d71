// ABOUTME: Event value types for the live-push and webhook distribution paths
// ABOUTME: Defines the closed event-type enumeration and targeted/global scoping

package event

import (
	"time"
)

// Type categorizes the kind of event pushed to live connections.
type Type string

const (
	TypeConnectionEstablished Type = "connection_established"
	TypeHeartbeat             Type = "heartbeat"
	TypeConversationStarted   Type = "conversation_started"
	TypeMessageReceived       Type = "message_received"
	TypeAgentResponded        Type = "agent_responded"
	TypeUserJoined            Type = "user_joined"
	TypeSystemUpdate          Type = "system_update"

	// Derived from inbound automation callbacks.
	TypeWorkflowCompleted Type = "workflow_completed"
	TypeWorkflowFailed    Type = "workflow_failed"
)

// streamTypes is the closed set of types accepted on the manual trigger endpoint.
var streamTypes = map[Type]bool{
	TypeConnectionEstablished: true,
	TypeHeartbeat:             true,
	TypeConversationStarted:   true,
	TypeMessageReceived:       true,
	TypeAgentResponded:        true,
	TypeUserJoined:            true,
	TypeSystemUpdate:          true,
	TypeWorkflowCompleted:     true,
	TypeWorkflowFailed:        true,
}

// ValidType reports whether t is a member of the closed stream enumeration.
func ValidType(t Type) bool {
	return streamTypes[t]
}

// WebhookType names an event type deliverable to webhook subscribers.
// This is a separate, dotted enumeration matching the CRUD record format.
type WebhookType string

const (
	WebhookConversationCreated  WebhookType = "conversation.created"
	WebhookConversationUpdated  WebhookType = "conversation.updated"
	WebhookMessageCreated       WebhookType = "message.created"
	WebhookAgentCreated         WebhookType = "agent.created"
	WebhookAgentUpdated         WebhookType = "agent.updated"
	WebhookAgentDeleted         WebhookType = "agent.deleted"
	WebhookKnowledgeBaseUpdated WebhookType = "knowledge_base.updated"
)

var webhookTypes = map[WebhookType]bool{
	WebhookConversationCreated:  true,
	WebhookConversationUpdated:  true,
	WebhookMessageCreated:       true,
	WebhookAgentCreated:         true,
	WebhookAgentUpdated:         true,
	WebhookAgentDeleted:         true,
	WebhookKnowledgeBaseUpdated: true,
}

// ValidWebhookType reports whether t belongs to the webhook enumeration.
func ValidWebhookType(t WebhookType) bool {
	return webhookTypes[t]
}

// ValidWebhookTypes reports whether every element of ts belongs to the
// webhook enumeration. An empty slice is valid (subscribes to nothing).
func ValidWebhookTypes(ts []string) bool {
	for _, t := range ts {
		if !webhookTypes[WebhookType(t)] {
			return false
		}
	}
	return true
}

// Event is a single distribution-worthy occurrence. Events are constructed
// by the change poller or the callback verifier, consumed immediately by the
// broadcaster and dispatcher, and never persisted as first-class records.
type Event struct {
	Type Type `json:"type"`

	// TargetUser is the owner whose connections should receive the event.
	// Empty means global scope (every open connection).
	TargetUser string `json:"-"`

	Payload   map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Global reports whether the event should reach every open connection.
func (e *Event) Global() bool {
	return e.TargetUser == ""
}

// New constructs an event stamped with the current time.
func New(t Type, targetUser string, payload map[string]any) *Event {
	return &Event{
		Type:       t,
		TargetUser: targetUser,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}
