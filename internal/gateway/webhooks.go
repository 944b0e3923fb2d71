// ABOUTME: CRUD handlers for webhook subscriptions and their delivery audit trail
// ABOUTME: Validates target URLs and event-type sets, auto-generates shared secrets

package gateway

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chatforge/pulse/internal/auth"
	"github.com/chatforge/pulse/internal/event"
	"github.com/chatforge/pulse/internal/store"
)

// SubscriptionRequest is the JSON body for creating or updating a webhook
// subscription.
type SubscriptionRequest struct {
	TargetURL  string   `json:"target_url"`
	Secret     string   `json:"secret,omitempty"`
	EventTypes []string `json:"event_types"`
	IsActive   *bool    `json:"is_active,omitempty"`
}

// SubscriptionResponse is the JSON representation of a subscription.
// The secret is only included on create, when the caller needs to store it.
type SubscriptionResponse struct {
	ID         string   `json:"id"`
	TargetURL  string   `json:"target_url"`
	Secret     string   `json:"secret,omitempty"`
	EventTypes []string `json:"event_types"`
	IsActive   bool     `json:"is_active"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

// DeliveryResponse is the JSON representation of one delivery record.
type DeliveryResponse struct {
	ID           string `json:"id"`
	EventType    string `json:"event_type"`
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body,omitempty"`
	DeliveredAt  string `json:"delivered_at"`
}

// handleWebhooks handles /api/webhooks: POST creates, GET lists.
func (g *Gateway) handleWebhooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.createWebhook(w, r)
	case http.MethodGet:
		g.listWebhooks(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleWebhookByID handles /api/webhooks/{id} and /api/webhooks/{id}/deliveries.
func (g *Gateway) handleWebhookByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/webhooks/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		g.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 2 && parts[1] == "deliveries" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.listWebhookDeliveries(w, r, id)
		return
	}
	if len(parts) > 1 {
		g.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		g.getWebhook(w, r, id)
	case http.MethodPut:
		g.updateWebhook(w, r, id)
	case http.MethodDelete:
		g.deleteWebhook(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// validateSubscription checks the target URL and event-type set.
func validateSubscription(targetURL string, eventTypes []string) error {
	parsed, err := url.Parse(targetURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return errors.New("target_url must be a well-formed absolute URL")
	}
	if !event.ValidWebhookTypes(eventTypes) {
		return errors.New("event_types contains an unknown event type")
	}
	return nil
}

// generateSecret returns 32 random bytes, hex-encoded.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (g *Gateway) createWebhook(w http.ResponseWriter, r *http.Request) {
	owner := auth.UserFromContext(r.Context())

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateSubscription(req.TargetURL, req.EventTypes); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	secret := req.Secret
	if secret == "" {
		var err error
		secret, err = generateSecret()
		if err != nil {
			g.logger.Error("failed to generate webhook secret", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	sub := &store.WebhookSubscription{
		Owner:      owner,
		TargetURL:  req.TargetURL,
		Secret:     secret,
		EventTypes: req.EventTypes,
		IsActive:   active,
	}
	if err := g.store.CreateSubscription(r.Context(), sub); err != nil {
		g.logger.Error("failed to create subscription", "owner", owner, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(subscriptionResponse(sub, true))
}

func (g *Gateway) listWebhooks(w http.ResponseWriter, r *http.Request) {
	owner := auth.UserFromContext(r.Context())

	subs, err := g.store.ListSubscriptions(r.Context(), owner)
	if err != nil {
		g.logger.Error("failed to list subscriptions", "owner", owner, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		response = append(response, subscriptionResponse(sub, false))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ownedSubscription loads a subscription and checks ownership. A foreign
// subscription is indistinguishable from a missing one.
func (g *Gateway) ownedSubscription(w http.ResponseWriter, r *http.Request, id string) *store.WebhookSubscription {
	sub, err := g.store.GetSubscription(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "not found")
		return nil
	}
	if err != nil {
		g.logger.Error("failed to load subscription", "subscription_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil
	}
	if sub.Owner != auth.UserFromContext(r.Context()) {
		g.sendJSONError(w, http.StatusNotFound, "not found")
		return nil
	}
	return sub
}

func (g *Gateway) getWebhook(w http.ResponseWriter, r *http.Request, id string) {
	sub := g.ownedSubscription(w, r, id)
	if sub == nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subscriptionResponse(sub, false))
}

func (g *Gateway) updateWebhook(w http.ResponseWriter, r *http.Request, id string) {
	sub := g.ownedSubscription(w, r, id)
	if sub == nil {
		return
	}

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateSubscription(req.TargetURL, req.EventTypes); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub.TargetURL = req.TargetURL
	sub.EventTypes = req.EventTypes
	if req.Secret != "" {
		sub.Secret = req.Secret
	}
	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}

	if err := g.store.UpdateSubscription(r.Context(), sub); err != nil {
		g.logger.Error("failed to update subscription", "subscription_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subscriptionResponse(sub, false))
}

func (g *Gateway) deleteWebhook(w http.ResponseWriter, r *http.Request, id string) {
	sub := g.ownedSubscription(w, r, id)
	if sub == nil {
		return
	}

	if err := g.store.DeleteSubscription(r.Context(), sub.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		g.logger.Error("failed to delete subscription", "subscription_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
}

func (g *Gateway) listWebhookDeliveries(w http.ResponseWriter, r *http.Request, id string) {
	sub := g.ownedSubscription(w, r, id)
	if sub == nil {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	deliveries, err := g.store.ListDeliveries(r.Context(), sub.ID, limit)
	if err != nil {
		g.logger.Error("failed to list deliveries", "subscription_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]DeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		response = append(response, DeliveryResponse{
			ID:           d.ID,
			EventType:    d.EventType,
			StatusCode:   d.StatusCode,
			ResponseBody: d.ResponseBody,
			DeliveredAt:  d.DeliveredAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func subscriptionResponse(sub *store.WebhookSubscription, includeSecret bool) SubscriptionResponse {
	resp := SubscriptionResponse{
		ID:         sub.ID,
		TargetURL:  sub.TargetURL,
		EventTypes: sub.EventTypes,
		IsActive:   sub.IsActive,
		CreatedAt:  sub.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  sub.UpdatedAt.Format(time.RFC3339),
	}
	if includeSecret {
		resp.Secret = sub.Secret
	}
	return resp
}
