// ABOUTME: Per-connection keep-alive emitter and the primary liveness detector
// ABOUTME: A failed push or the 1h age ceiling unregisters the connection

package stream

import (
	"encoding/json"
	"time"

	"github.com/chatforge/pulse/internal/event"
)

// runHeartbeat pushes a heartbeat frame on a fixed period for the lifetime
// of the connection. The peer usually does not send an explicit disconnect
// signal, so a failed push here is the signal to unregister. Connections
// older than the registry ceiling are force-closed on the next tick.
func (r *Registry) runHeartbeat(conn *Connection) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			return

		case <-ticker.C:
			if conn.Age() > r.maxAge {
				r.logger.Info("connection exceeded age ceiling, closing",
					"connection_id", conn.ID,
					"owner", conn.Owner,
					"age", conn.Age())
				r.Unregister(conn.ID)
				return
			}

			frame, err := json.Marshal(event.New(event.TypeHeartbeat, conn.Owner, nil))
			if err != nil {
				// Heartbeat payload is static; this cannot happen in practice.
				continue
			}
			if err := conn.Push(frame); err != nil {
				r.logger.Debug("heartbeat push failed, peer gone",
					"connection_id", conn.ID,
					"owner", conn.Owner,
					"error", err)
				r.Unregister(conn.ID)
				return
			}
		}
	}
}
