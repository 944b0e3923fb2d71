// ABOUTME: Tests for callback signature verification, parsing, and routing
// ABOUTME: Covers tampered bodies, permissive unsigned mode, and outcome events

package callback

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/pulse/internal/event"
	"github.com/chatforge/pulse/internal/webhook"
)

// spyPublisher records events published by outcome handlers.
type spyPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *spyPublisher) Publish(e *event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *spyPublisher) Events() []*event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*event.Event, len(p.events))
	copy(out, p.events)
	return out
}

func callbackBody(t *testing.T, cb Callback) []byte {
	t.Helper()
	body, err := json.Marshal(cb)
	require.NoError(t, err)
	return body
}

func TestHandle_ValidSignature(t *testing.T) {
	pub := &spyPublisher{}
	v := NewVerifier("shared-secret", pub, nil)

	body := callbackBody(t, Callback{
		ExecutionID: "exec-1",
		WorkflowID:  "lead-processing",
		Status:      StatusSuccess,
	})

	result, err := v.Handle(body, webhook.Sign("shared-secret", body))
	require.NoError(t, err)
	assert.Equal(t, "exec-1", result.ExecutionID)
	assert.Equal(t, CategoryLeadProcessing, result.Category)
	assert.Equal(t, StatusSuccess, result.Status)
}

func TestHandle_TamperedBodyRejected(t *testing.T) {
	v := NewVerifier("shared-secret", nil, nil)

	body := callbackBody(t, Callback{ExecutionID: "exec-1", WorkflowID: "backup", Status: StatusSuccess})
	sig := webhook.Sign("shared-secret", body)

	tampered := callbackBody(t, Callback{ExecutionID: "exec-1", WorkflowID: "backup", Status: StatusError})
	_, err := v.Handle(tampered, sig)
	assert.True(t, errors.Is(err, ErrBadSignature))
}

func TestHandle_WrongSecretRejected(t *testing.T) {
	v := NewVerifier("shared-secret", nil, nil)

	body := callbackBody(t, Callback{ExecutionID: "exec-1", WorkflowID: "backup", Status: StatusSuccess})
	_, err := v.Handle(body, webhook.Sign("other-secret", body))
	assert.True(t, errors.Is(err, ErrBadSignature))
}

func TestHandle_NoSecretAcceptsUnsigned(t *testing.T) {
	v := NewVerifier("", nil, nil)

	body := callbackBody(t, Callback{ExecutionID: "exec-1", WorkflowID: "crm-sync", Status: StatusRunning})
	result, err := v.Handle(body, "")
	require.NoError(t, err)
	assert.Equal(t, CategoryCRMSync, result.Category)
}

func TestHandle_MissingSignatureWithSecretAccepted(t *testing.T) {
	// Signature is only enforced when both a secret is configured and a
	// signature is presented.
	v := NewVerifier("shared-secret", nil, nil)

	body := callbackBody(t, Callback{ExecutionID: "exec-1", WorkflowID: "backup", Status: StatusSuccess})
	_, err := v.Handle(body, "")
	assert.NoError(t, err)
}

func TestHandle_MalformedBody(t *testing.T) {
	v := NewVerifier("", nil, nil)

	_, err := v.Handle([]byte("not json at all"), "")
	assert.True(t, errors.Is(err, ErrMalformedBody))

	_, err = v.Handle([]byte(`{"status":"success"}`), "")
	assert.True(t, errors.Is(err, ErrMalformedBody), "execution_id and workflow_id are required")
}

func TestHandle_ErrorStatusPublishesWorkflowFailed(t *testing.T) {
	pub := &spyPublisher{}
	v := NewVerifier("", pub, nil)

	body := callbackBody(t, Callback{
		ExecutionID: "exec-1",
		WorkflowID:  "lead-enrichment",
		Status:      StatusError,
		Error:       "upstream timeout",
		Data:        map[string]any{"user_id": "alice"},
	})

	result, err := v.Handle(body, "")
	require.NoError(t, err)
	assert.Equal(t, CategoryLeadProcessing, result.Category)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeWorkflowFailed, events[0].Type)
	assert.Equal(t, "alice", events[0].TargetUser)
	assert.Equal(t, "upstream timeout", events[0].Payload["error"])
	assert.Equal(t, "lead_processing", events[0].Payload["category"])
}

func TestHandle_SuccessStatusPublishesWorkflowCompleted(t *testing.T) {
	pub := &spyPublisher{}
	v := NewVerifier("", pub, nil)

	body := callbackBody(t, Callback{
		ExecutionID: "exec-2",
		WorkflowID:  "crm-sync",
		Status:      StatusSuccess,
	})

	_, err := v.Handle(body, "")
	require.NoError(t, err)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeWorkflowCompleted, events[0].Type)
	assert.True(t, events[0].Global(), "no user in the payload means a global event")
}

func TestHandle_NonTerminalStatusPublishesNothing(t *testing.T) {
	pub := &spyPublisher{}
	v := NewVerifier("", pub, nil)

	for _, status := range []Status{StatusRunning, StatusWaiting} {
		body := callbackBody(t, Callback{ExecutionID: "exec-1", WorkflowID: "sentiment", Status: status})
		_, err := v.Handle(body, "")
		require.NoError(t, err)
	}

	assert.Empty(t, pub.Events())
}

func TestHandle_UnknownStatusAcceptedAndIgnored(t *testing.T) {
	pub := &spyPublisher{}
	v := NewVerifier("", pub, nil)

	body := callbackBody(t, Callback{ExecutionID: "exec-1", WorkflowID: "backup", Status: "exploded"})
	result, err := v.Handle(body, "")
	require.NoError(t, err, "unknown statuses are logged, not rejected")
	assert.Equal(t, Status("exploded"), result.Status)
	assert.Empty(t, pub.Events())
}

func TestHandle_BackupSuccessStaysQuiet(t *testing.T) {
	// Routine backup completions are log-only; failures publish.
	pub := &spyPublisher{}
	v := NewVerifier("", pub, nil)

	body := callbackBody(t, Callback{ExecutionID: "exec-1", WorkflowID: "nightly-backup", Status: StatusSuccess})
	_, err := v.Handle(body, "")
	require.NoError(t, err)
	assert.Empty(t, pub.Events())

	body = callbackBody(t, Callback{ExecutionID: "exec-2", WorkflowID: "nightly-backup", Status: StatusError, Error: "disk full"})
	_, err = v.Handle(body, "")
	require.NoError(t, err)
	assert.Len(t, pub.Events(), 1)
}
