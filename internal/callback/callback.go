// ABOUTME: Typed callback records reported by the external workflow engine
// ABOUTME: Classifies workflows into handling categories by workflow id substring

package callback

import (
	"strings"
	"time"
)

// Status is the execution state reported by the workflow engine.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusRunning Status = "running"
	StatusWaiting Status = "waiting"
)

// Callback is one execution-status report from the workflow engine.
type Callback struct {
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      Status         `json:"status"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Category selects the handling branch for a workflow.
type Category string

const (
	CategoryLeadProcessing    Category = "lead_processing"
	CategoryMessagingSender   Category = "messaging_sender"
	CategorySentimentAnalysis Category = "sentiment_analysis"
	CategoryBackup            Category = "backup"
	CategoryCRMSync           Category = "crm_sync"
	CategoryGeneric           Category = "generic"
)

// Classify inspects the workflow id and picks the handling category by
// substring match. Anything unrecognized is generic, which is still a
// successful outcome for the ingress.
func Classify(workflowID string) Category {
	id := strings.ToLower(workflowID)
	switch {
	case strings.Contains(id, "lead"):
		return CategoryLeadProcessing
	case strings.Contains(id, "message") || strings.Contains(id, "sender"):
		return CategoryMessagingSender
	case strings.Contains(id, "sentiment"):
		return CategorySentimentAnalysis
	case strings.Contains(id, "backup"):
		return CategoryBackup
	case strings.Contains(id, "crm"):
		return CategoryCRMSync
	default:
		return CategoryGeneric
	}
}
