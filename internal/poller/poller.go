// ABOUTME: Per-user periodic change detection against the backing store
// ABOUTME: Translates new conversation/message rows into typed events for broadcast

package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chatforge/pulse/internal/dedupe"
	"github.com/chatforge/pulse/internal/event"
	"github.com/chatforge/pulse/internal/store"
)

const (
	// DefaultInterval is the poll period per active user.
	DefaultInterval = 10 * time.Second

	// watermarkSlack is re-read overlap applied when advancing the created_at
	// watermark. Rows whose created_at ties across two poll windows are read
	// again and suppressed by the row-id dedupe cache instead of being
	// announced twice.
	watermarkSlack = time.Second

	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 10000
)

// Publisher receives the events the poller produces.
type Publisher interface {
	Publish(e *event.Event)
}

// Supervisor owns one polling goroutine per active user. Polling for a user
// starts when their first connection registers and stops when their last
// connection unregisters. This substitutes for a change-data-capture feed
// and adds up to one poll interval of latency.
type Supervisor struct {
	store     store.Store
	publisher Publisher
	interval  time.Duration
	seen      *dedupe.Cache
	logger    *slog.Logger

	mu      sync.Mutex
	pollers map[string]context.CancelFunc
}

// NewSupervisor creates a poller supervisor. Pass nil logger for default.
func NewSupervisor(st store.Store, publisher Publisher, interval time.Duration, logger *slog.Logger) *Supervisor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		store:     st,
		publisher: publisher,
		interval:  interval,
		seen:      dedupe.New(dedupeTTL, dedupeMaxSize),
		logger:    logger.With("component", "poller"),
	}
}

// Start begins polling for the given user. Starting an already-running
// poller is a no-op.
func (s *Supervisor) Start(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.pollers[userID]; running {
		return
	}
	if s.pollers == nil {
		s.pollers = make(map[string]context.CancelFunc)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.pollers[userID] = cancel
	go s.pollLoop(ctx, userID)

	s.logger.Debug("poller started", "user_id", userID)
}

// Stop halts polling for the given user. Stopping a user with no running
// poller is a no-op.
func (s *Supervisor) Stop(userID string) {
	s.mu.Lock()
	cancel, ok := s.pollers[userID]
	if ok {
		delete(s.pollers, userID)
	}
	s.mu.Unlock()

	if ok {
		cancel()
		s.logger.Debug("poller stopped", "user_id", userID)
	}
}

// Running reports whether a poller is active for the user.
func (s *Supervisor) Running(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pollers[userID]
	return ok
}

// Close stops all pollers and releases the dedupe cache.
func (s *Supervisor) Close() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.pollers))
	for userID, cancel := range s.pollers {
		cancels = append(cancels, cancel)
		delete(s.pollers, userID)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.seen.Close()
}

// pollLoop queries for rows created since the last successful check and
// publishes one event per qualifying row. A failed query is logged and
// retried on the next tick; it never stops the loop.
func (s *Supervisor) pollLoop(ctx context.Context, userID string) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Only rows created after the poller started are announced.
	convSince := time.Now().UTC()
	msgSince := convSince

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			convSince = s.pollConversations(ctx, userID, convSince)
			msgSince = s.pollMessages(ctx, userID, msgSince)
		}
	}
}

// pollConversations announces new conversations and returns the advanced
// watermark. On query failure the watermark is returned unchanged.
func (s *Supervisor) pollConversations(ctx context.Context, userID string, since time.Time) time.Time {
	convs, err := s.store.ListConversationsCreatedSince(ctx, userID, since)
	if err != nil {
		s.logger.Warn("conversation poll failed", "user_id", userID, "error", err)
		return since
	}

	activeAgents := s.activeAgentCount(ctx, userID)

	watermark := since
	for _, conv := range convs {
		if conv.CreatedAt.After(watermark) {
			watermark = conv.CreatedAt
		}
		if s.seen.Observe("conv|" + userID + "|" + conv.ID) {
			continue
		}
		s.publisher.Publish(event.New(event.TypeConversationStarted, userID, map[string]any{
			"conversation_id": conv.ID,
			"title":           conv.Title,
			"created_at":      conv.CreatedAt,
			"active_agents":   activeAgents,
		}))
	}
	return advance(since, watermark)
}

// pollMessages announces new messages and returns the advanced watermark.
// Rows authored by the user map to message_received, everything else to
// agent_responded.
func (s *Supervisor) pollMessages(ctx context.Context, userID string, since time.Time) time.Time {
	msgs, err := s.store.ListMessagesCreatedSince(ctx, userID, since)
	if err != nil {
		s.logger.Warn("message poll failed", "user_id", userID, "error", err)
		return since
	}

	watermark := since
	for _, msg := range msgs {
		if msg.CreatedAt.After(watermark) {
			watermark = msg.CreatedAt
		}
		if s.seen.Observe("msg|" + userID + "|" + msg.ID) {
			continue
		}

		eventType := event.TypeAgentResponded
		if msg.Role == store.RoleUser {
			eventType = event.TypeMessageReceived
		}
		s.publisher.Publish(event.New(eventType, userID, map[string]any{
			"message_id":      msg.ID,
			"conversation_id": msg.ConversationID,
			"role":            msg.Role,
			"content":         msg.Content,
			"created_at":      msg.CreatedAt,
		}))
	}
	return advance(since, watermark)
}

// advance moves the watermark to the newest created_at observed, pulled back
// by the slack overlap but never behind the previous watermark.
func advance(prev, newest time.Time) time.Time {
	if !newest.After(prev) {
		return prev
	}
	adjusted := newest.Add(-watermarkSlack)
	if adjusted.Before(prev) {
		return prev
	}
	return adjusted
}

// activeAgentCount runs the agent side query. Failures degrade to zero.
func (s *Supervisor) activeAgentCount(ctx context.Context, userID string) int {
	count, err := s.store.CountActiveAgents(ctx, userID)
	if err != nil {
		s.logger.Warn("agent count query failed", "user_id", userID, "error", err)
		return 0
	}
	return count
}
