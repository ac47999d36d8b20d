package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-agent/internal/api/dto"
	"github.com/spec-kit/support-agent/internal/domain"
	"github.com/spec-kit/support-agent/internal/service"
	apperrors "github.com/spec-kit/support-agent/pkg/util/errorutil"
)

// EscalationConsole is the staff side of escalation.
type EscalationConsole interface {
	ListTickets(ctx context.Context, filter service.TicketListFilter) ([]domain.Ticket, error)
	ResolveTicket(ctx context.Context, staff *domain.StaffMember, ticketID int64, note *string) (*domain.Ticket, error)
	CloseConversation(ctx context.Context, staff *domain.StaffMember, conversationID string) (*domain.Conversation, error)
	PostHumanMessage(ctx context.Context, staff *domain.StaffMember, conversationID, text string) (*domain.Message, error)
	Transcript(ctx context.Context, conversationID string) (*domain.Conversation, []domain.Message, error)
	Analytics(ctx context.Context, conversationID string) (*domain.ConversationAnalytics, error)
}

// StaffTicketsHandler handles the escalation queue and takeover endpoints.
type StaffTicketsHandler struct {
	console EscalationConsole
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(console EscalationConsole) *StaffTicketsHandler {
	return &StaffTicketsHandler{console: console}
}

// ListTickets GET /staff/tickets.
func (h *StaffTicketsHandler) ListTickets(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	tickets, err := h.console.ListTickets(c.UserContext(), parseTicketFilter(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ResolveTicket POST /staff/tickets/:id/resolve.
func (h *StaffTicketsHandler) ResolveTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticketID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || ticketID <= 0 {
		return apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	var req dto.ResolveTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.console.ResolveTicket(c.UserContext(), staff, ticketID, req.Note)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Transcript GET /staff/conversations/:id/messages.
func (h *StaffTicketsHandler) Transcript(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	conv, msgs, err := h.console.Transcript(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapServiceError(err)
	}
	resp := dto.TranscriptResponse{
		Conversation: conversationResponse(conv),
		Messages:     make([]dto.TranscriptMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, dto.TranscriptMessage{
			ID:         m.ID,
			Sender:     m.Sender,
			Text:       m.Text,
			ToolName:   m.ToolName,
			ToolCallID: m.ToolCallID,
			ToolCalls:  m.ToolCallsJSON,
			CreatedAt:  m.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// PostMessage POST /staff/conversations/:id/messages.
func (h *StaffTicketsHandler) PostMessage(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.HumanMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}
	msg, err := h.console.PostHumanMessage(c.UserContext(), staff, c.Params("id"), req.Body)
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.TranscriptMessage{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}})
}

// Close POST /staff/conversations/:id/close.
func (h *StaffTicketsHandler) Close(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	conv, err := h.console.CloseConversation(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": conversationResponse(conv)})
}

// Analytics GET /staff/conversations/:id/analytics.
func (h *StaffTicketsHandler) Analytics(c *fiber.Ctx) error {
	if _, err := staffPrincipal(c); err != nil {
		return err
	}
	a, err := h.console.Analytics(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(fiber.Map{"data": dto.AnalyticsResponse{
		ConversationID: a.ConversationID,
		MessageCount:   a.MessageCount,
		ToolCallsCount: a.ToolCallsCount,
		WasEscalated:   a.WasEscalated,
		ResolutionType: a.ResolutionType,
		UpdatedAt:      a.UpdatedAt,
	}})
}

func parseTicketFilter(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{}
	if statuses := c.Query("status"); statuses != "" {
		for _, part := range strings.Split(statuses, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if convID := c.Query("conversation_id"); convID != "" {
		filter.ConversationID = &convID
	}
	if email := c.Query("customer_email"); email != "" {
		filter.CustomerEmail = &email
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:             ticket.ID,
		ExternalKey:    ticket.ExternalKey,
		ConversationID: ticket.ConversationID,
		CustomerEmail:  ticket.CustomerEmail,
		Reason:         ticket.Reason,
		Source:         ticket.Source,
		Status:         ticket.Status,
		ResolvedBy:     ticket.ResolvedBy,
		ResolutionNote: ticket.ResolutionNote,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
		ResolvedAt:     ticket.ResolvedAt,
	}
}

func conversationResponse(conv *domain.Conversation) dto.ConversationResponse {
	return dto.ConversationResponse{
		ID:            conv.ID,
		CustomerEmail: conv.CustomerEmail,
		StoreID:       conv.StoreID,
		Channel:       conv.Channel,
		Status:        conv.Status,
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
	}
}
