package service

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-agent/internal/domain"
	"github.com/spec-kit/support-agent/internal/events"
	"github.com/spec-kit/support-agent/internal/repository"
)

type memConversations struct {
	mu    sync.Mutex
	items map[string]*domain.Conversation
}

func newMemConversations(convs ...domain.Conversation) *memConversations {
	m := &memConversations{items: map[string]*domain.Conversation{}}
	for i := range convs {
		c := convs[i]
		m.items[c.ID] = &c
	}
	return m
}

func (m *memConversations) CreateWithSystemMessage(_ context.Context, conv *domain.Conversation, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *conv
	m.items[conv.ID] = &c
	return nil
}

func (m *memConversations) GetByID(_ context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (m *memConversations) TransitionStatus(_ context.Context, id string, next domain.ConversationStatus, from ...domain.ConversationStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok || !slices.Contains(from, c.Status) {
		return false, nil
	}
	c.Status = next
	return true, nil
}

func (m *memConversations) status(id string) domain.ConversationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

type memMessages struct {
	mu     sync.Mutex
	nextID int64
	rows   []domain.Message
}

func (m *memMessages) Append(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	m.rows = append(m.rows, *msg)
	return nil
}

func (m *memMessages) ListRecent(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	all, _ := m.ListByConversation(context.Background(), conversationID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memMessages) SystemMessage(_ context.Context, conversationID string) (*domain.Message, error) {
	all, _ := m.ListByConversation(context.Background(), conversationID)
	for _, msg := range all {
		if msg.Sender == domain.SenderSystem {
			return &msg, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memMessages) ListByConversation(_ context.Context, conversationID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Message
	for _, msg := range m.rows {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type memTickets struct {
	mu     sync.Mutex
	nextID int64
	items  []*domain.Ticket
}

func (m *memTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ticket.ID = m.nextID
	t := *ticket
	m.items = append(m.items, &t)
	return nil
}

func (m *memTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.items {
		if t.ID == id {
			out := *t
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memTickets) Resolve(_ context.Context, id int64, staffID string, note *string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.items {
		if t.ID == id && t.Status == domain.TicketStatusOpen {
			t.Status = domain.TicketStatusResolved
			t.ResolvedBy = &staffID
			t.ResolutionNote = note
			out := *t
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memTickets) CountOpen(_ context.Context, conversationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.items {
		if t.ConversationID == conversationID && t.Status == domain.TicketStatusOpen {
			n++
		}
	}
	return n, nil
}

func (m *memTickets) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ticket
	for i := len(m.items) - 1; i >= 0; i-- {
		t := m.items[i]
		if filter.ConversationID != nil && t.ConversationID != *filter.ConversationID {
			continue
		}
		if filter.CustomerEmail != nil && !strings.EqualFold(t.CustomerEmail, *filter.CustomerEmail) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

type memAnalytics struct {
	mu    sync.Mutex
	items map[string]*domain.ConversationAnalytics
}

func newMemAnalytics() *memAnalytics {
	return &memAnalytics{items: map[string]*domain.ConversationAnalytics{}}
}

func (m *memAnalytics) Get(_ context.Context, conversationID string) (*domain.ConversationAnalytics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[conversationID]
	if !ok {
		return &domain.ConversationAnalytics{ConversationID: conversationID, ResolutionType: domain.ResolutionPending}, nil
	}
	out := *a
	return &out, nil
}

func (m *memAnalytics) Apply(_ context.Context, conversationID string, delta domain.AnalyticsDelta) (*domain.ConversationAnalytics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[conversationID]
	if !ok {
		a = &domain.ConversationAnalytics{ConversationID: conversationID, ResolutionType: domain.ResolutionPending}
		m.items[conversationID] = a
	}
	a.MessageCount += delta.Messages
	a.ToolCallsCount += delta.ToolCalls
	a.WasEscalated = a.WasEscalated || delta.Escalated
	if delta.Resolution != nil {
		a.ResolutionType = *delta.Resolution
	}
	out := *a
	return &out, nil
}

type memStaff struct {
	mu    sync.Mutex
	items []*domain.StaffMember
}

func (m *memStaff) Create(_ context.Context, staff *domain.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staff.ID = "staff-" + staff.Email
	s := *staff
	m.items = append(m.items, &s)
	return nil
}

func (m *memStaff) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.ID == id {
			out := *s
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStaff) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if strings.EqualFold(s.Email, email) {
			out := *s
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memStaff) Update(_ context.Context, staff *domain.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.items {
		if s.ID == staff.ID {
			updated := *staff
			m.items[i] = &updated
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memStaff) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StaffMember
	for _, s := range m.items {
		if filter.Role != nil && s.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && s.Active != *filter.Active {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

// recorder captures everything published on a dispatcher.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Send(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
