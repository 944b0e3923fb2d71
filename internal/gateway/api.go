// ABOUTME: HTTP handlers for the live-push stream endpoint and manual event trigger
// ABOUTME: GET holds an SSE stream open; POST publishes a targeted or global event

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/chatforge/pulse/internal/auth"
	"github.com/chatforge/pulse/internal/event"
	"github.com/chatforge/pulse/internal/stream"
)

// TriggerRequest is the JSON request body for POST /api/events/stream.
type TriggerRequest struct {
	Event struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	} `json:"event"`
	TargetUser string `json:"target_user,omitempty"`
}

// setCORSHeaders applies the permissive cross-origin policy for the
// dashboard. The stream endpoint is token-authenticated, not cookie
// authenticated, so a wildcard origin is acceptable.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
}

// handleEventStream handles /api/events/stream requests.
// GET opens a live-push stream, POST publishes a manual event, OPTIONS
// answers the CORS preflight.
func (g *Gateway) handleEventStream(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		g.openStream(w, r)
	case http.MethodPost:
		g.triggerEvent(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// openStream registers a connection for the verified user and holds the
// response open, pushing frames until the peer disconnects, the connection
// is unregistered, or the age ceiling closes it.
func (g *Gateway) openStream(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFromContext(r.Context())
	if userID == "" {
		g.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	writer, err := stream.NewSSEWriter(w)
	if err != nil {
		g.logger.Error("streaming not supported", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	conn := stream.NewConnection(userID, writer)
	g.registry.Register(conn)

	established := event.New(event.TypeConnectionEstablished, userID, map[string]any{
		"connection_id": conn.ID,
		"user_id":       userID,
	})
	frame, _ := json.Marshal(established)
	if err := conn.Push(frame); err != nil {
		g.registry.Unregister(conn.ID)
		return
	}

	// Block for the connection's lifetime. Peer disconnect cancels the
	// request context; ceiling expiry and heartbeat failure cancel the
	// connection through the registry.
	select {
	case <-r.Context().Done():
		g.registry.Unregister(conn.ID)
	case <-conn.Done():
	}

	// The ResponseWriter dies with this handler. Drain any push that was
	// already holding the connection before returning.
	conn.Wait()
}

// triggerEvent publishes a manually constructed event: targeted when
// target_user is given, global otherwise.
func (g *Gateway) triggerEvent(w http.ResponseWriter, r *http.Request) {
	req, err := parseTriggerRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.broadcaster.Publish(event.New(event.Type(req.Event.Type), req.TargetUser, req.Event.Data))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// parseTriggerRequest parses and validates a TriggerRequest from the given
// reader. Returns an error if the JSON is invalid or the event type is not
// part of the closed enumeration.
func parseTriggerRequest(r io.Reader) (*TriggerRequest, error) {
	var req TriggerRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.Event.Type == "" {
		return nil, errors.New("event.type is required")
	}
	if !event.ValidType(event.Type(req.Event.Type)) {
		return nil, errors.New("unknown event type")
	}
	return &req, nil
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
