package domain

import "time"

// ResolutionType summarises how a conversation ended up.
type ResolutionType string

const (
	ResolutionPending   ResolutionType = "pending"
	ResolutionEscalated ResolutionType = "escalated"
	ResolutionResolved  ResolutionType = "resolved"
)

// ConversationAnalytics is a rollup rebuilt incrementally per turn.
type ConversationAnalytics struct {
	ConversationID string
	MessageCount   int
	ToolCallsCount int
	WasEscalated   bool
	ResolutionType ResolutionType
	UpdatedAt      time.Time
}

// AnalyticsDelta is applied on top of the stored rollup.
type AnalyticsDelta struct {
	Messages   int
	ToolCalls  int
	Escalated  bool
	Resolution *ResolutionType
}
