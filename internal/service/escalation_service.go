package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-agent/internal/domain"
	"github.com/spec-kit/support-agent/internal/events"
	"github.com/spec-kit/support-agent/internal/observability"
	"github.com/spec-kit/support-agent/internal/repository"
)

var (
	// ErrInvalidTransition is returned when a conversation or ticket is not in
	// a state that allows the requested action.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrOpenTickets blocks closing a conversation that still has open tickets.
	ErrOpenTickets = fmt.Errorf("%w: conversation has open tickets", ErrInvalidTransition)
)

const (
	defaultEscalationReason = "Customer requested human assistance."
	defaultLockTimeout      = 30 * time.Second
)

// TurnLocker serializes work on one conversation. The chat engine holds the
// same lock for a whole turn, so staff writes never interleave with a turn.
type TurnLocker interface {
	Lock(ctx context.Context, conversationID string) (release func(), err error)
}

// EscalationService hands conversations to humans and backs the staff console.
type EscalationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	tickets       repository.TicketRepository
	analytics     repository.AnalyticsRepository
	dispatcher    events.Dispatcher
	locker        TurnLocker
	lockTimeout   time.Duration
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// EscalationDependencies bundles repositories for the escalation service.
type EscalationDependencies struct {
	ConversationRepo repository.ConversationRepository
	MessageRepo      repository.MessageRepository
	TicketRepo       repository.TicketRepository
	AnalyticsRepo    repository.AnalyticsRepository
	Dispatcher       events.Dispatcher
	// Locker is shared with the chat engine. Escalate does not take it since
	// the engine calls it mid-turn.
	Locker           TurnLocker
	LockTimeout      time.Duration
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lockTimeout := deps.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &EscalationService{
		conversations: deps.ConversationRepo,
		messages:      deps.MessageRepo,
		tickets:       deps.TicketRepo,
		analytics:     deps.AnalyticsRepo,
		dispatcher:    deps.Dispatcher,
		locker:        deps.Locker,
		lockTimeout:   lockTimeout,
		metrics:       deps.Metrics,
		logger:        logger,
	}
}

// Escalate opens a ticket and moves an open conversation to escalated.
// Repeated calls open further tickets; open tickets are not deduplicated.
func (s *EscalationService) Escalate(ctx context.Context, req domain.EscalationRequest) (*domain.Ticket, error) {
	conv, err := s.conversations.GetByID(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.ConversationStatusClosed {
		return nil, fmt.Errorf("%w: conversation is closed", ErrInvalidTransition)
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultEscalationReason
	}
	source := req.Source
	if source == "" {
		source = domain.TicketSourceTool
	}
	email := req.CustomerEmail
	if email == "" {
		email = conv.CustomerEmail
	}

	ticket := &domain.Ticket{
		ExternalKey:    generateEscalationKey(),
		ConversationID: conv.ID,
		CustomerEmail:  email,
		Reason:         reason,
		Source:         source,
		Status:         domain.TicketStatusOpen,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	changed, err := s.conversations.TransitionStatus(ctx, conv.ID, domain.ConversationStatusEscalated, domain.ConversationStatusOpen)
	if err != nil {
		return nil, err
	}
	resolution := domain.ResolutionEscalated
	if _, err := s.analytics.Apply(ctx, conv.ID, domain.AnalyticsDelta{Escalated: true, Resolution: &resolution}); err != nil {
		return nil, err
	}

	actor := events.Actor{Type: domain.SubjectTypeCustomer, Email: &email, System: source == domain.TicketSourceAuto}
	s.publishEvent(ctx, events.Event{
		Type:           events.EventTicketCreated,
		ConversationID: conv.ID,
		Actor:          actor,
		Payload: events.TicketCreatedPayload{
			TicketKey:     ticket.ExternalKey,
			Source:        source,
			CustomerEmail: email,
			Reason:        reason,
		},
	})
	if changed {
		s.publishEvent(ctx, events.Event{
			Type:           events.EventConversationEscalated,
			ConversationID: conv.ID,
			Actor:          actor,
			Payload:        events.ConversationEscalatedPayload{TicketKey: ticket.ExternalKey, Source: source},
		})
	}
	s.metrics.RecordEscalation(string(source))
	s.logger.Info("conversation escalated",
		zap.String("conversation_id", conv.ID),
		zap.String("ticket", ticket.ExternalKey),
		zap.String("source", string(source)),
		zap.Bool("status_changed", changed))
	return ticket, nil
}

// ResolveTicket closes an open ticket. When it was the conversation's last
// open ticket the conversation's resolution becomes resolved.
func (s *EscalationService) ResolveTicket(ctx context.Context, staff *domain.StaffMember, ticketID int64, note *string) (*domain.Ticket, error) {
	if note != nil {
		trimmed := strings.TrimSpace(*note)
		note = &trimmed
		if trimmed == "" {
			note = nil
		}
	}
	ticket, err := s.tickets.Resolve(ctx, ticketID, staff.ID, note)
	if repository.IsNotFound(err) {
		existing, getErr := s.tickets.GetByID(ctx, ticketID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: ticket %s is %s", ErrInvalidTransition, existing.ExternalKey, existing.Status)
	}
	if err != nil {
		return nil, err
	}

	open, err := s.tickets.CountOpen(ctx, ticket.ConversationID)
	if err != nil {
		return nil, err
	}
	if open == 0 {
		resolution := domain.ResolutionResolved
		if _, err := s.analytics.Apply(ctx, ticket.ConversationID, domain.AnalyticsDelta{Resolution: &resolution}); err != nil {
			return nil, err
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:           events.EventTicketResolved,
		ConversationID: ticket.ConversationID,
		Actor:          staffActor(staff.ID),
		Payload: events.TicketResolvedPayload{
			TicketKey:      ticket.ExternalKey,
			ResolvedBy:     staff.ID,
			ResolutionNote: note,
			OpenRemaining:  open,
		},
	})
	return ticket, nil
}

// CloseConversation ends a conversation once no ticket is open. Closed is terminal.
func (s *EscalationService) CloseConversation(ctx context.Context, staff *domain.StaffMember, conversationID string) (*domain.Conversation, error) {
	release, err := s.lockConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.ConversationStatusClosed {
		return nil, fmt.Errorf("%w: conversation already closed", ErrInvalidTransition)
	}
	open, err := s.tickets.CountOpen(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, ErrOpenTickets
	}

	changed, err := s.conversations.TransitionStatus(ctx, conversationID, domain.ConversationStatusClosed,
		domain.ConversationStatusOpen, domain.ConversationStatusEscalated)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("%w: conversation changed concurrently", ErrInvalidTransition)
	}

	s.publishEvent(ctx, events.Event{
		Type:           events.EventConversationClosed,
		ConversationID: conversationID,
		Actor:          staffActor(staff.ID),
		Payload:        events.ConversationClosedPayload{PreviousStatus: conv.Status},
	})
	previous := conv.Status
	conv.Status = domain.ConversationStatusClosed
	s.logger.Info("conversation closed",
		zap.String("conversation_id", conversationID),
		zap.String("staff_id", staff.ID),
		zap.String("previous_status", string(previous)))
	return conv, nil
}

// PostHumanMessage appends a staff reply to an escalated conversation.
func (s *EscalationService) PostHumanMessage(ctx context.Context, staff *domain.StaffMember, conversationID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("message body required")
	}
	release, err := s.lockConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status != domain.ConversationStatusEscalated {
		return nil, fmt.Errorf("%w: takeover requires an escalated conversation, got %s", ErrInvalidTransition, conv.Status)
	}

	msg := &domain.Message{ConversationID: conversationID, Sender: domain.SenderHuman, Text: &text}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	if _, err := s.analytics.Apply(ctx, conversationID, domain.AnalyticsDelta{Messages: 1}); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:           events.EventHumanMessageAdded,
		ConversationID: conversationID,
		Actor:          staffActor(staff.ID),
		Payload: events.HumanMessageAddedPayload{
			MessageID:   msg.ID,
			BodyPreview: stringPreview(text, 120),
		},
	})
	return msg, nil
}

// TicketListFilter narrows the console's ticket queue.
type TicketListFilter struct {
	Statuses       []domain.TicketStatus
	ConversationID *string
	CustomerEmail  *string
	Limit          int
	Offset         int
}

// ListTickets returns tickets, newest first.
func (s *EscalationService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		ConversationID: filter.ConversationID,
		CustomerEmail:  filter.CustomerEmail,
		Statuses:       filter.Statuses,
		Limit:          filter.Limit,
		Offset:         filter.Offset,
	})
}

// Transcript returns the full message log, tool rows included.
func (s *EscalationService) Transcript(ctx context.Context, conversationID string) (*domain.Conversation, []domain.Message, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// Analytics returns the conversation's rollup.
func (s *EscalationService) Analytics(ctx context.Context, conversationID string) (*domain.ConversationAnalytics, error) {
	if _, err := s.conversations.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.analytics.Get(ctx, conversationID)
}

func generateEscalationKey() string {
	return "ESC-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *EscalationService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func staffActor(staffID string) events.Actor {
	return events.Actor{
		Type:    domain.SubjectTypeStaff,
		StaffID: &staffID,
	}
}

func (s *EscalationService) lockConversation(ctx context.Context, conversationID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	return s.locker.Lock(lockCtx, conversationID)
}

// stringPreview truncates body to max runes.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
