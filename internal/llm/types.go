// Package llm adapts chat-completion providers to the message shape the
// conversation engine works with.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Role is the speaker of a provider message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the prompt window.
type Message struct {
	Role       Role
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Tool describes a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a single completion request.
type Request struct {
	Messages []Message
	Tools    []Tool
}

// Response is the model's answer: text, tool calls, or both.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Client completes a prompt window.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("llm: empty response")

// storedToolCall is the persisted form of a tool call. It keeps the
// OpenAI wire layout so stored rows can be replayed to either provider.
type storedToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// EncodeToolCalls renders calls for the tool_calls_json column.
func EncodeToolCalls(calls []ToolCall) (string, error) {
	out := make([]storedToolCall, len(calls))
	for i, c := range calls {
		out[i].ID = c.ID
		out[i].Type = "function"
		out[i].Function.Name = c.Name
		out[i].Function.Arguments = string(normalizeArgs(c.Arguments))
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode tool calls: %w", err)
	}
	return string(raw), nil
}

// DecodeToolCalls parses the tool_calls_json column.
func DecodeToolCalls(raw string) ([]ToolCall, error) {
	if raw == "" {
		return nil, nil
	}
	var stored []storedToolCall
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decode tool calls: %w", err)
	}
	calls := make([]ToolCall, len(stored))
	for i, s := range stored {
		calls[i] = ToolCall{ID: s.ID, Name: s.Function.Name, Arguments: normalizeArgs(json.RawMessage(s.Function.Arguments))}
	}
	return calls, nil
}

func normalizeArgs(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage("{}")
	}
	return raw
}
