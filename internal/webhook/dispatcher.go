// ABOUTME: Concurrent webhook delivery with per-subscription signing and audit records
// ABOUTME: One delivery failing never cancels or affects the others; no retries

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chatforge/pulse/internal/event"
	"github.com/chatforge/pulse/internal/store"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the request body.
	SignatureHeader = "X-Webhook-Signature"

	// DefaultTimeout bounds one outbound delivery attempt.
	DefaultTimeout = 10 * time.Second

	// maxResponseBody caps the captured subscriber response.
	maxResponseBody = 1024
)

// payload is the canonical body delivered to every matching subscription.
type payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Dispatcher resolves active subscriptions for an (owner, event type) pair
// and delivers the signed payload to each, concurrently and independently.
// Every attempt produces exactly one WebhookDelivery record. There is no
// retry: a failed delivery is recorded and not reattempted.
type Dispatcher struct {
	store     store.Store
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. Pass nil client for a default with
// DefaultTimeout, nil logger for default.
func NewDispatcher(st store.Store, client *http.Client, userAgent string, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if userAgent == "" {
		userAgent = "pulse-gateway/1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     st,
		client:    client,
		userAgent: userAgent,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Dispatch delivers the event to every active matching subscription of the
// owner and returns once all attempts have completed and been recorded.
// No matching subscriptions is a normal, silent outcome. Resolution errors
// are the only error surface; delivery outcomes live in the audit trail.
func (d *Dispatcher) Dispatch(ctx context.Context, owner string, eventType event.WebhookType, data map[string]any) error {
	subs, err := d.store.FindActiveSubscriptions(ctx, owner, string(eventType))
	if err != nil {
		return fmt.Errorf("resolving subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	body, err := json.Marshal(payload{
		Event:     string(eventType),
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *store.WebhookSubscription) {
			defer wg.Done()
			d.deliver(ctx, sub, string(eventType), body)
		}(sub)
	}
	wg.Wait()
	return nil
}

// deliver performs one signed POST and records the outcome. Transport
// failures are recorded with status code 0 and the error text.
func (d *Dispatcher) deliver(ctx context.Context, sub *store.WebhookSubscription, eventType string, body []byte) {
	delivery := &store.WebhookDelivery{
		SubscriptionID: sub.ID,
		EventType:      eventType,
		Payload:        string(body),
		DeliveredAt:    time.Now().UTC(),
	}

	statusCode, responseBody, err := d.post(ctx, sub, body)
	if err != nil {
		delivery.StatusCode = 0
		delivery.ResponseBody = err.Error()
		d.logger.Warn("webhook delivery failed",
			"subscription_id", sub.ID,
			"target_url", sub.TargetURL,
			"event_type", eventType,
			"error", err)
	} else {
		delivery.StatusCode = statusCode
		delivery.ResponseBody = responseBody
		d.logger.Debug("webhook delivered",
			"subscription_id", sub.ID,
			"event_type", eventType,
			"status_code", statusCode)
	}

	if err := d.store.RecordDelivery(ctx, delivery); err != nil {
		d.logger.Error("failed to record webhook delivery",
			"subscription_id", sub.ID,
			"error", err)
	}
}

// post issues the signed HTTP request and captures a bounded response body.
func (d *Dispatcher) post(ctx context.Context, sub *store.WebhookSubscription, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set(SignatureHeader, Sign(sub.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("delivering webhook: %w", err)
	}
	defer resp.Body.Close()

	// Best-effort capture; a read error still yields the status code.
	captured, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode, string(captured), nil
}
