// ABOUTME: Fan-out of poller events to both delivery paths
// ABOUTME: Live push always; webhook dispatch for types with a subscriber equivalent

package gateway

import (
	"context"
	"log/slog"

	"github.com/chatforge/pulse/internal/event"
	"github.com/chatforge/pulse/internal/stream"
	"github.com/chatforge/pulse/internal/webhook"
)

// webhookTypeFor maps a stream event type to its webhook enumeration
// equivalent. Types without an equivalent (heartbeats, workflow outcomes)
// are live-push only.
func webhookTypeFor(t event.Type) (event.WebhookType, bool) {
	switch t {
	case event.TypeConversationStarted:
		return event.WebhookConversationCreated, true
	case event.TypeMessageReceived, event.TypeAgentResponded:
		return event.WebhookMessageCreated, true
	default:
		return "", false
	}
}

// eventFanout hands each event to the broadcaster and, independently, to
// the webhook dispatcher. Dispatch runs in its own goroutine so slow
// subscriber endpoints never delay live push.
type eventFanout struct {
	broadcaster *stream.Broadcaster
	dispatcher  *webhook.Dispatcher
	logger      *slog.Logger
}

func newEventFanout(b *stream.Broadcaster, d *webhook.Dispatcher, logger *slog.Logger) *eventFanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &eventFanout{
		broadcaster: b,
		dispatcher:  d,
		logger:      logger.With("component", "fanout"),
	}
}

// Publish implements poller.Publisher.
func (f *eventFanout) Publish(e *event.Event) {
	f.broadcaster.Publish(e)

	webhookType, ok := webhookTypeFor(e.Type)
	if !ok || e.TargetUser == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhook.DefaultTimeout*2)
		defer cancel()
		if err := f.dispatcher.Dispatch(ctx, e.TargetUser, webhookType, e.Payload); err != nil {
			f.logger.Warn("webhook dispatch failed",
				"owner", e.TargetUser,
				"event_type", webhookType,
				"error", err)
		}
	}()
}
