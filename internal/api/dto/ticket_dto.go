package dto

import (
	"time"

	"github.com/spec-kit/support-agent/internal/domain"
)

// TicketSummary response.
type TicketSummary struct {
	ID             int64               `json:"id"`
	ExternalKey    string              `json:"external_key"`
	ConversationID string              `json:"conversation_id"`
	CustomerEmail  string              `json:"customer_email"`
	Reason         string              `json:"reason"`
	Source         domain.TicketSource `json:"source"`
	Status         domain.TicketStatus `json:"status"`
	ResolvedBy     *string             `json:"resolved_by,omitempty"`
	ResolutionNote *string             `json:"resolution_note,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	ResolvedAt     *time.Time          `json:"resolved_at,omitempty"`
}

// ResolveTicketRequest payload.
type ResolveTicketRequest struct {
	Note *string `json:"note"`
}

// HumanMessageRequest is a staff takeover reply.
type HumanMessageRequest struct {
	Body string `json:"body"`
}

// ConversationResponse summarises a conversation for the console.
type ConversationResponse struct {
	ID            string                    `json:"id"`
	CustomerEmail string                    `json:"customer_email"`
	StoreID       string                    `json:"store_id"`
	Channel       string                    `json:"channel"`
	Status        domain.ConversationStatus `json:"status"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// TranscriptMessage is one raw log row, tool traffic included.
type TranscriptMessage struct {
	ID         int64                `json:"id"`
	Sender     domain.MessageSender `json:"sender"`
	Text       *string              `json:"text,omitempty"`
	ToolName   *string              `json:"tool_name,omitempty"`
	ToolCallID *string              `json:"tool_call_id,omitempty"`
	ToolCalls  *string              `json:"tool_calls,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// TranscriptResponse bundles a conversation with its log.
type TranscriptResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	Messages     []TranscriptMessage  `json:"messages"`
}

// AnalyticsResponse is the per-conversation rollup.
type AnalyticsResponse struct {
	ConversationID string                `json:"conversation_id"`
	MessageCount   int                   `json:"message_count"`
	ToolCallsCount int                   `json:"tool_calls_count"`
	WasEscalated   bool                  `json:"was_escalated"`
	ResolutionType domain.ResolutionType `json:"resolution_type"`
	UpdatedAt      time.Time             `json:"updated_at"`
}
