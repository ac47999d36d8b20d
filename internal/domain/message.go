package domain

import "time"

// MessageSender enumerates who authored a log entry.
type MessageSender string

const (
	SenderSystem MessageSender = "system"
	SenderUser   MessageSender = "user"
	SenderAgent  MessageSender = "agent"
	SenderHuman  MessageSender = "human"
	SenderTool   MessageSender = "tool"
)

// Message is an append-only conversation log entry. ID order is replay order.
type Message struct {
	ID             int64
	ConversationID string
	Sender         MessageSender
	Text           *string
	ToolCallID     *string
	ToolName       *string
	ToolCallsJSON  *string
	CreatedAt      time.Time
}

// Body returns the text or an empty string.
func (m Message) Body() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}
