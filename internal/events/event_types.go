package events

import (
	"time"

	"github.com/spec-kit/support-agent/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventConversationEscalated EventType = "conversation_escalated"
	EventConversationClosed    EventType = "conversation_closed"
	EventTicketCreated         EventType = "ticket_created"
	EventTicketResolved        EventType = "ticket_resolved"
	EventHumanMessageAdded     EventType = "human_message_added"
)

// AllEventTypes lists every type in publication order of a typical escalation.
func AllEventTypes() []EventType {
	return []EventType{
		EventTicketCreated,
		EventConversationEscalated,
		EventHumanMessageAdded,
		EventTicketResolved,
		EventConversationClosed,
	}
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	Email   *string            `json:"email,omitempty"`
	StaffID *string            `json:"staff_id,omitempty"`
	// System is set when the agent itself acted (auto escalation).
	System bool `json:"system,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID             string      `json:"id"`
	Type           EventType   `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Actor          Actor       `json:"actor"`
	Timestamp      time.Time   `json:"timestamp"`
	Payload        interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketKey     string              `json:"ticket_key"`
	Source        domain.TicketSource `json:"source"`
	CustomerEmail string              `json:"customer_email"`
	Reason        string              `json:"reason"`
}

// ConversationEscalatedPayload payload.
type ConversationEscalatedPayload struct {
	TicketKey string              `json:"ticket_key"`
	Source    domain.TicketSource `json:"source"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	TicketKey      string  `json:"ticket_key"`
	ResolvedBy     string  `json:"resolved_by"`
	ResolutionNote *string `json:"resolution_note,omitempty"`
	OpenRemaining  int     `json:"open_remaining"`
}

// ConversationClosedPayload payload.
type ConversationClosedPayload struct {
	PreviousStatus domain.ConversationStatus `json:"previous_status"`
}

// HumanMessageAddedPayload payload.
type HumanMessageAddedPayload struct {
	MessageID   int64  `json:"message_id"`
	BodyPreview string `json:"body_preview"`
}
