package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-agent/internal/api/dto"
	"github.com/spec-kit/support-agent/internal/auth"
	"github.com/spec-kit/support-agent/internal/conversation"
	"github.com/spec-kit/support-agent/internal/domain"
	apperrors "github.com/spec-kit/support-agent/pkg/util/errorutil"
)

// ChatEngine runs customer turns.
type ChatEngine interface {
	PostMessage(ctx context.Context, req conversation.TurnRequest) (*conversation.TurnResult, error)
	GetHistory(ctx context.Context, conversationID, email string) ([]conversation.HistoryEntry, error)
}

// ChatHandler exposes the customer Turn API.
type ChatHandler struct {
	engine ChatEngine
}

// NewChatHandler constructs handler.
func NewChatHandler(engine ChatEngine) *ChatHandler {
	return &ChatHandler{engine: engine}
}

// PostMessage handles POST /chat.
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.CustomerEmail == "" {
		return apperrors.NewUnauthorized("customer required")
	}
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Message) == "" {
		return apperrors.NewValidationError("message required", nil)
	}

	result, err := h.engine.PostMessage(c.UserContext(), conversation.TurnRequest{
		ConversationID: req.SessionID,
		CustomerEmail:  principal.CustomerEmail,
		StoreID:        req.StoreID,
		Channel:        domain.DefaultChannel,
		Text:           req.Message,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(dto.ChatResponse{
		Response:  result.Reply,
		SessionID: result.ConversationID,
		Status:    result.Status,
	})
}

// History handles GET /chat/:session_id/history.
func (h *ChatHandler) History(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.CustomerEmail == "" {
		return apperrors.NewUnauthorized("customer required")
	}
	entries, err := h.engine.GetHistory(c.UserContext(), c.Params("session_id"), principal.CustomerEmail)
	if err != nil {
		return mapServiceError(err)
	}
	items := make([]dto.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.HistoryEntry{Role: e.Role, Content: e.Content, CreatedAt: e.CreatedAt})
	}
	return c.JSON(fiber.Map{"data": items})
}
