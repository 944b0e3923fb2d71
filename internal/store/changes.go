// ABOUTME: Change-feed queries consumed by the per-user change poller
// ABOUTME: Reads conversation/message rows created since a watermark plus agent counts

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateConversation inserts a conversation row. This is the CRUD layer's
// write path; the distribution core only reads conversations.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO conversations (id, user_id, title, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.UserID,
		conv.Title,
		conv.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// CreateMessage inserts a message row.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, conversation_id, user_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.UserID,
		msg.Role,
		msg.Content,
		msg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// CreateAgent inserts an agent row.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	if agent.UpdatedAt.IsZero() {
		agent.UpdatedAt = now
	}

	query := `
		INSERT INTO agents (id, user_id, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		agent.UserID,
		agent.Name,
		boolToInt(agent.IsActive),
		agent.CreatedAt.Format(time.RFC3339Nano),
		agent.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

// ListConversationsCreatedSince returns the user's conversations created
// strictly after the watermark, oldest first.
func (s *SQLiteStore) ListConversationsCreatedSince(ctx context.Context, userID string, since time.Time) ([]*Conversation, error) {
	query := `
		SELECT id, user_id, title, created_at
		FROM conversations
		WHERE user_id = ? AND created_at > ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv := &Conversation{}
		var createdAt string
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		conv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// ListMessagesCreatedSince returns the user's messages created strictly
// after the watermark, oldest first.
func (s *SQLiteStore) ListMessagesCreatedSince(ctx context.Context, userID string, since time.Time) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, user_id, role, content, created_at
		FROM messages
		WHERE user_id = ? AND created_at > ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg := &Message{}
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.UserID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

// CountActiveAgents returns how many of the user's agents are active.
func (s *SQLiteStore) CountActiveAgents(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM agents WHERE user_id = ? AND is_active = 1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting active agents: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
