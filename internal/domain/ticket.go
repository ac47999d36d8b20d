package domain

import "time"

// TicketStatus enumerates escalation ticket states.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusResolved TicketStatus = "resolved"
)

// TicketSource records what raised the escalation.
type TicketSource string

const (
	TicketSourceAuto TicketSource = "auto"
	TicketSourceTool TicketSource = "tool"
)

// Ticket records a single escalation of a conversation to a human.
type Ticket struct {
	ID             int64
	ExternalKey    string
	ConversationID string
	CustomerEmail  string
	Reason         string
	Source         TicketSource
	Status         TicketStatus
	ResolvedBy     *string
	ResolutionNote *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
}

// EscalationRequest asks for a conversation to be handed to a human.
type EscalationRequest struct {
	ConversationID string
	CustomerEmail  string
	Reason         string
	Source         TicketSource
}
