package repository

import (
	"context"

	"github.com/spec-kit/support-agent/internal/domain"
)

// AnalyticsRepository maintains the per-conversation rollup.
type AnalyticsRepository interface {
	// Get returns a zero pending rollup when none has been written yet.
	Get(ctx context.Context, conversationID string) (*domain.ConversationAnalytics, error)
	Apply(ctx context.Context, conversationID string, delta domain.AnalyticsDelta) (*domain.ConversationAnalytics, error)
}

type analyticsRepository struct {
	db DB
}

// NewAnalyticsRepository instantiates repository.
func NewAnalyticsRepository(db DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) Get(ctx context.Context, conversationID string) (*domain.ConversationAnalytics, error) {
	const query = `
        SELECT conversation_id, message_count, tool_calls_count, was_escalated, resolution_type, updated_at
        FROM conversation_analytics WHERE conversation_id=$1`
	var a domain.ConversationAnalytics
	err := r.db.QueryRow(ctx, query, conversationID).Scan(
		&a.ConversationID,
		&a.MessageCount,
		&a.ToolCallsCount,
		&a.WasEscalated,
		&a.ResolutionType,
		&a.UpdatedAt,
	)
	if IsNotFound(err) {
		return &domain.ConversationAnalytics{ConversationID: conversationID, ResolutionType: domain.ResolutionPending}, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *analyticsRepository) Apply(ctx context.Context, conversationID string, delta domain.AnalyticsDelta) (*domain.ConversationAnalytics, error) {
	const query = `
        INSERT INTO conversation_analytics (conversation_id, message_count, tool_calls_count, was_escalated, resolution_type)
        VALUES ($1,$2,$3,$4,COALESCE($5::text,'pending'))
        ON CONFLICT (conversation_id) DO UPDATE SET
            message_count = conversation_analytics.message_count + EXCLUDED.message_count,
            tool_calls_count = conversation_analytics.tool_calls_count + EXCLUDED.tool_calls_count,
            was_escalated = conversation_analytics.was_escalated OR EXCLUDED.was_escalated,
            resolution_type = COALESCE($5::text, conversation_analytics.resolution_type),
            updated_at = NOW()
        RETURNING conversation_id, message_count, tool_calls_count, was_escalated, resolution_type, updated_at`

	var resolution *string
	if delta.Resolution != nil {
		value := string(*delta.Resolution)
		resolution = &value
	}

	var a domain.ConversationAnalytics
	if err := r.db.QueryRow(ctx, query,
		conversationID,
		delta.Messages,
		delta.ToolCalls,
		delta.Escalated,
		resolution,
	).Scan(
		&a.ConversationID,
		&a.MessageCount,
		&a.ToolCallsCount,
		&a.WasEscalated,
		&a.ResolutionType,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
