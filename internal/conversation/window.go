package conversation

import (
	"fmt"
	"strings"

	"github.com/spec-kit/support-agent/internal/domain"
	"github.com/spec-kit/support-agent/internal/llm"
)

// DefaultHistoryWindow is the number of non-system messages replayed per turn.
const DefaultHistoryWindow = 15

// BuildWindow reduces the message log to the model context: the system
// message followed by the newest limit non-system messages in log order.
// A window never opens on a tool message, since a tool result is only valid
// right after the assistant message that requested it. Tool calls with no
// recorded result, and results with no matching call, are left out.
func BuildWindow(system *domain.Message, history []domain.Message, limit int) ([]llm.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryWindow
	}

	tail := make([]domain.Message, 0, len(history))
	for _, m := range history {
		if m.Sender != domain.SenderSystem {
			tail = append(tail, m)
		}
	}
	if len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	for len(tail) > 0 && tail[0].Sender == domain.SenderTool {
		tail = tail[1:]
	}

	out := make([]llm.Message, 0, len(tail)+1)
	if system != nil {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: system.Body()})
	}
	for _, m := range tail {
		msg, err := toLLMMessage(m)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return pairToolCalls(out), nil
}

// pairToolCalls keeps an assistant tool call only when a tool message for its
// id follows directly. An assistant entry left with neither calls nor text is
// dropped.
func pairToolCalls(msgs []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		switch {
		case m.Role == llm.RoleTool:
			// not claimed by a preceding assistant entry
			continue
		case m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0:
			end := i + 1
			answered := map[string]bool{}
			for end < len(msgs) && msgs[end].Role == llm.RoleTool {
				answered[msgs[end].ToolCallID] = true
				end++
			}
			requested := map[string]bool{}
			kept := make([]llm.ToolCall, 0, len(m.ToolCalls))
			for _, call := range m.ToolCalls {
				if answered[call.ID] && !requested[call.ID] {
					requested[call.ID] = true
					kept = append(kept, call)
				}
			}
			m.ToolCalls = kept
			if len(kept) > 0 || strings.TrimSpace(m.Content) != "" {
				out = append(out, m)
			}
			for _, result := range msgs[i+1 : end] {
				if requested[result.ToolCallID] {
					out = append(out, result)
					delete(requested, result.ToolCallID)
				}
			}
			i = end - 1
		default:
			out = append(out, m)
		}
	}
	return out
}

func toLLMMessage(m domain.Message) (llm.Message, error) {
	switch m.Sender {
	case domain.SenderUser:
		return llm.Message{Role: llm.RoleUser, Content: m.Body()}, nil
	case domain.SenderAgent, domain.SenderHuman:
		msg := llm.Message{Role: llm.RoleAssistant, Content: m.Body()}
		if m.ToolCallsJSON != nil {
			calls, err := llm.DecodeToolCalls(*m.ToolCallsJSON)
			if err != nil {
				return llm.Message{}, fmt.Errorf("message %d: %w", m.ID, err)
			}
			msg.ToolCalls = calls
		}
		return msg, nil
	case domain.SenderTool:
		msg := llm.Message{Role: llm.RoleTool, Content: m.Body()}
		if m.ToolCallID != nil {
			msg.ToolCallID = *m.ToolCallID
		}
		if m.ToolName != nil {
			msg.Name = *m.ToolName
		}
		return msg, nil
	default:
		return llm.Message{}, fmt.Errorf("message %d: unexpected sender %q", m.ID, m.Sender)
	}
}
