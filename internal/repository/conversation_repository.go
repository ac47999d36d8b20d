package repository

import (
	"context"
	"fmt"

	"github.com/spec-kit/support-agent/internal/domain"
)

// ConversationRepository persists conversation headers.
type ConversationRepository interface {
	// CreateWithSystemMessage inserts the conversation and its single system message atomically.
	CreateWithSystemMessage(ctx context.Context, conv *domain.Conversation, systemText string) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	// TransitionStatus moves the conversation to next only when its current status is in from.
	// It reports whether a row changed.
	TransitionStatus(ctx context.Context, id string, next domain.ConversationStatus, from ...domain.ConversationStatus) (bool, error)
}

type conversationRepository struct {
	db DB
}

// NewConversationRepository instantiates repository.
func NewConversationRepository(db DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) CreateWithSystemMessage(ctx context.Context, conv *domain.Conversation, systemText string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollback(ctx, tx)

	const insertConversation = `
        INSERT INTO conversations (id, customer_email, store_id, channel, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, insertConversation,
		conv.ID,
		conv.CustomerEmail,
		conv.StoreID,
		conv.Channel,
		conv.Status,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	const insertSystem = `
        INSERT INTO messages (conversation_id, sender, text)
        VALUES ($1,$2,$3)`
	if _, err := tx.Exec(ctx, insertSystem, conv.ID, domain.SenderSystem, systemText); err != nil {
		return fmt.Errorf("insert system message: %w", err)
	}

	const insertAnalytics = `
        INSERT INTO conversation_analytics (conversation_id, resolution_type)
        VALUES ($1,$2)
        ON CONFLICT (conversation_id) DO NOTHING`
	if _, err := tx.Exec(ctx, insertAnalytics, conv.ID, domain.ResolutionPending); err != nil {
		return fmt.Errorf("insert analytics: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	const query = `
        SELECT id, customer_email, store_id, channel, status, created_at, updated_at
        FROM conversations WHERE id=$1`
	var conv domain.Conversation
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&conv.ID,
		&conv.CustomerEmail,
		&conv.StoreID,
		&conv.Channel,
		&conv.Status,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) TransitionStatus(ctx context.Context, id string, next domain.ConversationStatus, from ...domain.ConversationStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition to %s: no source status", next)
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	const query = `
        UPDATE conversations SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status = ANY($3)`
	cmd, err := r.db.Exec(ctx, query, next, id, allowed)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
