// ABOUTME: HTTP handler for inbound workflow engine callbacks
// ABOUTME: Reads the raw body for signature verification before JSON parsing

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/chatforge/pulse/internal/callback"
)

// SignatureHeader carries the hex HMAC of the raw request body.
const SignatureHeader = "X-Signature"

// handleAutomationCallback handles POST /api/callbacks/automation. The
// endpoint is unauthenticated; trust comes from the shared-secret
// signature when one is configured.
func (g *Gateway) handleAutomationCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := g.callbacks.Handle(body, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, callback.ErrBadSignature):
		g.sendJSONError(w, http.StatusUnauthorized, "invalid signature")
		return
	case errors.Is(err, callback.ErrMalformedBody):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		g.logger.Error("callback handling failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.logger.Info("callback processed",
		"execution_id", result.ExecutionID,
		"workflow", result.Category,
		"status", result.Status)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}
