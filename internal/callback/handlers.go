// ABOUTME: Category-specific handlers for workflow engine callbacks
// ABOUTME: Terminal statuses publish workflow events to the owner's live connections

package callback

import (
	"log/slog"

	"github.com/chatforge/pulse/internal/event"
)

// publishOutcome turns a terminal callback into a live-push event. If the
// workflow payload names a user, the event is targeted; otherwise global.
func (v *Verifier) publishOutcome(category Category, cb *Callback) {
	if v.publisher == nil {
		return
	}

	eventType := event.TypeWorkflowCompleted
	if cb.Status == StatusError {
		eventType = event.TypeWorkflowFailed
	}

	targetUser := ""
	if uid, ok := cb.Data["user_id"].(string); ok {
		targetUser = uid
	}

	payload := map[string]any{
		"execution_id": cb.ExecutionID,
		"workflow_id":  cb.WorkflowID,
		"category":     string(category),
		"status":       string(cb.Status),
	}
	if cb.Error != "" {
		payload["error"] = cb.Error
	}

	v.publisher.Publish(event.New(eventType, targetUser, payload))
}

// statusAttrs builds the common log attributes for a callback.
func statusAttrs(cb *Callback) []any {
	return []any{
		slog.String("execution_id", cb.ExecutionID),
		slog.String("workflow_id", cb.WorkflowID),
	}
}

func (v *Verifier) handleLeadProcessing(cb *Callback) {
	switch cb.Status {
	case StatusSuccess:
		v.logger.Info("lead processing completed", statusAttrs(cb)...)
		v.publishOutcome(CategoryLeadProcessing, cb)
	case StatusError:
		v.logger.Error("lead processing failed", append(statusAttrs(cb), slog.String("error", cb.Error))...)
		v.publishOutcome(CategoryLeadProcessing, cb)
	case StatusRunning:
		v.logger.Debug("lead processing running", statusAttrs(cb)...)
	case StatusWaiting:
		v.logger.Debug("lead processing waiting on input", statusAttrs(cb)...)
	default:
		v.logger.Warn("lead processing reported unknown status",
			append(statusAttrs(cb), slog.String("status", string(cb.Status)))...)
	}
}

func (v *Verifier) handleMessagingSender(cb *Callback) {
	switch cb.Status {
	case StatusSuccess:
		v.logger.Info("outbound message sent", statusAttrs(cb)...)
		v.publishOutcome(CategoryMessagingSender, cb)
	case StatusError:
		v.logger.Error("outbound message failed", append(statusAttrs(cb), slog.String("error", cb.Error))...)
		v.publishOutcome(CategoryMessagingSender, cb)
	case StatusRunning:
		v.logger.Debug("outbound message sending", statusAttrs(cb)...)
	case StatusWaiting:
		v.logger.Debug("outbound message queued", statusAttrs(cb)...)
	default:
		v.logger.Warn("messaging sender reported unknown status",
			append(statusAttrs(cb), slog.String("status", string(cb.Status)))...)
	}
}

func (v *Verifier) handleSentimentAnalysis(cb *Callback) {
	switch cb.Status {
	case StatusSuccess:
		score, _ := cb.Data["score"].(float64)
		v.logger.Info("sentiment analysis completed", append(statusAttrs(cb), slog.Float64("score", score))...)
		v.publishOutcome(CategorySentimentAnalysis, cb)
	case StatusError:
		v.logger.Error("sentiment analysis failed", append(statusAttrs(cb), slog.String("error", cb.Error))...)
		v.publishOutcome(CategorySentimentAnalysis, cb)
	case StatusRunning:
		v.logger.Debug("sentiment analysis running", statusAttrs(cb)...)
	case StatusWaiting:
		v.logger.Debug("sentiment analysis waiting", statusAttrs(cb)...)
	default:
		v.logger.Warn("sentiment analysis reported unknown status",
			append(statusAttrs(cb), slog.String("status", string(cb.Status)))...)
	}
}

func (v *Verifier) handleBackup(cb *Callback) {
	switch cb.Status {
	case StatusSuccess:
		v.logger.Info("backup completed", statusAttrs(cb)...)
	case StatusError:
		v.logger.Error("backup failed", append(statusAttrs(cb), slog.String("error", cb.Error))...)
		v.publishOutcome(CategoryBackup, cb)
	case StatusRunning:
		v.logger.Debug("backup running", statusAttrs(cb)...)
	case StatusWaiting:
		v.logger.Debug("backup waiting for window", statusAttrs(cb)...)
	default:
		v.logger.Warn("backup reported unknown status",
			append(statusAttrs(cb), slog.String("status", string(cb.Status)))...)
	}
}

func (v *Verifier) handleCRMSync(cb *Callback) {
	switch cb.Status {
	case StatusSuccess:
		v.logger.Info("crm sync completed", statusAttrs(cb)...)
		v.publishOutcome(CategoryCRMSync, cb)
	case StatusError:
		v.logger.Error("crm sync failed", append(statusAttrs(cb), slog.String("error", cb.Error))...)
		v.publishOutcome(CategoryCRMSync, cb)
	case StatusRunning:
		v.logger.Debug("crm sync running", statusAttrs(cb)...)
	case StatusWaiting:
		v.logger.Debug("crm sync waiting", statusAttrs(cb)...)
	default:
		v.logger.Warn("crm sync reported unknown status",
			append(statusAttrs(cb), slog.String("status", string(cb.Status)))...)
	}
}

// handleGeneric covers workflows outside the known categories. Accepting
// them is still a success for the ingress.
func (v *Verifier) handleGeneric(cb *Callback) {
	switch cb.Status {
	case StatusSuccess, StatusError, StatusRunning, StatusWaiting:
		v.logger.Info("generic workflow callback",
			append(statusAttrs(cb), slog.String("status", string(cb.Status)))...)
	default:
		v.logger.Warn("generic workflow reported unknown status",
			append(statusAttrs(cb), slog.String("status", string(cb.Status)))...)
	}
}
