package dto

import (
	"time"

	"github.com/spec-kit/support-agent/internal/domain"
)

// ChatRequest is one customer message. The customer email comes from the
// bearer token, never from the body.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	StoreID   string `json:"store_id"`
}

// ChatResponse is the agent's reply.
type ChatResponse struct {
	Response  string                    `json:"response"`
	SessionID string                    `json:"session_id"`
	Status    domain.ConversationStatus `json:"status"`
}

// HistoryEntry is one customer-visible transcript line.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
