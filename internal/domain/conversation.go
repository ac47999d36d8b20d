package domain

import "time"

// ConversationStatus enumerates conversation lifecycle states.
type ConversationStatus string

const (
	ConversationStatusOpen      ConversationStatus = "open"
	ConversationStatusEscalated ConversationStatus = "escalated"
	ConversationStatusClosed    ConversationStatus = "closed"
)

// Conversation is one customer chat session. Its message log is the only state
// replayed into model context.
type Conversation struct {
	ID            string
	CustomerEmail string
	StoreID       string
	Channel       string
	Status        ConversationStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DefaultChannel tags conversations started over the web chat API.
const DefaultChannel = "web"
