// ABOUTME: Fire-and-forget event fan-out over registered live-push connections
// ABOUTME: Targeted events reach one owner's connections, global events reach all

package stream

import (
	"encoding/json"
	"log/slog"

	"github.com/chatforge/pulse/internal/event"
)

// Broadcaster delivers events to live connections through the registry.
// Delivery is at-most-once, best-effort: no acknowledgment, no buffering
// for not-yet-connected clients, no retry. A push failure for one
// connection never affects delivery to the others; the failing connection
// is removed from the registry.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		logger:   logger.With("component", "broadcaster"),
	}
}

// Publish serializes the event once and pushes it to every connection in
// scope. Errors are recovered locally and never propagated to the caller.
func (b *Broadcaster) Publish(e *event.Event) {
	frame, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("failed to marshal event", "type", e.Type, "error", err)
		return
	}

	push := func(conn *Connection) {
		if err := conn.Push(frame); err != nil {
			b.logger.Debug("push failed, dropping connection",
				"connection_id", conn.ID,
				"owner", conn.Owner,
				"type", e.Type,
				"error", err)
			b.registry.Unregister(conn.ID)
		}
	}

	if e.Global() {
		b.registry.ForEachAll(push)
		return
	}
	b.registry.ForEachOwnedBy(e.TargetUser, push)
}
