package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-agent/internal/domain"
)

// MessageRepository is the append-only conversation log.
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) error
	// ListRecent returns the newest limit non-system messages in chronological order.
	ListRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	SystemMessage(ctx context.Context, conversationID string) (*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error)
}

type messageRepository struct {
	db DB
}

// NewMessageRepository instantiates repository.
func NewMessageRepository(db DB) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `id, conversation_id, sender, text, tool_call_id, tool_name, tool_calls_json, created_at`

func (r *messageRepository) Append(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (conversation_id, sender, text, tool_call_id, tool_name, tool_calls_json)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		msg.ConversationID,
		msg.Sender,
		msg.Text,
		msg.ToolCallID,
		msg.ToolName,
		msg.ToolCallsJSON,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 15
	}
	const query = `
        SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + ` FROM messages
            WHERE conversation_id=$1 AND sender <> 'system'
            ORDER BY id DESC LIMIT $2
        ) recent ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) SystemMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	const query = `
        SELECT ` + messageColumns + ` FROM messages
        WHERE conversation_id=$1 AND sender='system'
        ORDER BY id ASC LIMIT 1`
	var msg domain.Message
	if err := scanMessage(r.db.QueryRow(ctx, query, conversationID), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	const query = `
        SELECT ` + messageColumns + ` FROM messages
        WHERE conversation_id=$1
        ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessage(row pgx.Row, msg *domain.Message) error {
	return row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Sender,
		&msg.Text,
		&msg.ToolCallID,
		&msg.ToolName,
		&msg.ToolCallsJSON,
		&msg.CreatedAt,
	)
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
