// ABOUTME: Inbound callback signature verification, parsing, and routing
// ABOUTME: Rejects tampered bodies before any processing; unsigned mode is permissive

package callback

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chatforge/pulse/internal/event"
	"github.com/chatforge/pulse/internal/webhook"
)

// Verifier errors, mapped to HTTP status codes by the gateway.
var (
	ErrBadSignature  = errors.New("callback signature mismatch")
	ErrMalformedBody = errors.New("malformed callback body")
)

// Publisher receives events derived from accepted callbacks.
type Publisher interface {
	Publish(e *event.Event)
}

// Result describes how an accepted callback was routed.
type Result struct {
	ExecutionID string
	WorkflowID  string
	Category    Category
	Status      Status
}

// Verifier validates and routes callbacks from the workflow engine.
// When no shared secret is configured the signature check is skipped
// entirely; that permissive default is surfaced as a startup warning.
type Verifier struct {
	secret    string
	publisher Publisher
	logger    *slog.Logger
}

// NewVerifier creates a verifier. An empty secret disables signature checks.
func NewVerifier(secret string, publisher Publisher, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "callback")
	if secret == "" {
		logger.Warn("no callback secret configured, accepting unsigned callbacks")
	}
	return &Verifier{
		secret:    secret,
		publisher: publisher,
		logger:    logger,
	}
}

// Handle verifies the signature when one is configured and present, parses
// the body, and invokes the category handler for the reported status.
// Signature mismatch returns ErrBadSignature without processing the body.
func (v *Verifier) Handle(rawBody []byte, signature string) (*Result, error) {
	if v.secret != "" && signature != "" {
		if !webhook.Verify(v.secret, rawBody, signature) {
			return nil, ErrBadSignature
		}
	}

	var cb Callback
	if err := json.Unmarshal(rawBody, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if cb.ExecutionID == "" || cb.WorkflowID == "" {
		return nil, fmt.Errorf("%w: execution_id and workflow_id required", ErrMalformedBody)
	}

	category := Classify(cb.WorkflowID)
	v.route(category, &cb)

	return &Result{
		ExecutionID: cb.ExecutionID,
		WorkflowID:  cb.WorkflowID,
		Category:    category,
		Status:      cb.Status,
	}, nil
}

// route invokes the category-specific handler. Each status value maps to a
// disjoint branch; unknown statuses are logged and otherwise ignored.
func (v *Verifier) route(category Category, cb *Callback) {
	switch category {
	case CategoryLeadProcessing:
		v.handleLeadProcessing(cb)
	case CategoryMessagingSender:
		v.handleMessagingSender(cb)
	case CategorySentimentAnalysis:
		v.handleSentimentAnalysis(cb)
	case CategoryBackup:
		v.handleBackup(cb)
	case CategoryCRMSync:
		v.handleCRMSync(cb)
	default:
		v.handleGeneric(cb)
	}
}
