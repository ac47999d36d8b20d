package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-agent/internal/domain"
	"github.com/spec-kit/support-agent/internal/llm"
	"github.com/spec-kit/support-agent/internal/tools"
)

// memDB backs every in-memory repository used by the engine tests.
type memDB struct {
	mu        sync.Mutex
	convs     map[string]*domain.Conversation
	messages  []domain.Message
	nextMsgID int64
	analytics map[string]*domain.ConversationAnalytics
	settings  map[string]domain.StoreSettings
	stores    map[string]*domain.Store
	tickets   []domain.Ticket

	appendErr func(domain.Message) error
}

func newMemDB() *memDB {
	return &memDB{
		convs:     map[string]*domain.Conversation{},
		analytics: map[string]*domain.ConversationAnalytics{},
		settings:  map[string]domain.StoreSettings{},
		stores:    map[string]*domain.Store{"s1": {ID: "s1", Name: "Acme Outfitters"}},
	}
}

func (db *memDB) messagesFor(convID string) []domain.Message {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.Message
	for _, m := range db.messages {
		if m.ConversationID == convID {
			out = append(out, m)
		}
	}
	return out
}

func (db *memDB) conversation(id string) domain.Conversation {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.convs[id]
}

func (db *memDB) ticketCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.tickets)
}

func (db *memDB) seedConversation(c domain.Conversation, system string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.convs[c.ID] = &c
	db.nextMsgID++
	db.messages = append(db.messages, domain.Message{ID: db.nextMsgID, ConversationID: c.ID, Sender: domain.SenderSystem, Text: &system})
}

type memConversations struct{ db *memDB }

func (r memConversations) CreateWithSystemMessage(_ context.Context, conv *domain.Conversation, systemText string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.convs[conv.ID]; ok {
		return errors.New("duplicate conversation")
	}
	now := time.Now()
	conv.CreatedAt, conv.UpdatedAt = now, now
	stored := *conv
	r.db.convs[conv.ID] = &stored
	r.db.nextMsgID++
	text := systemText
	r.db.messages = append(r.db.messages, domain.Message{ID: r.db.nextMsgID, ConversationID: conv.ID, Sender: domain.SenderSystem, Text: &text, CreatedAt: now})
	return nil
}

func (r memConversations) GetByID(_ context.Context, id string) (*domain.Conversation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.convs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *c
	return &out, nil
}

func (r memConversations) TransitionStatus(_ context.Context, id string, next domain.ConversationStatus, from ...domain.ConversationStatus) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.convs[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = next
			return true, nil
		}
	}
	return false, nil
}

type memMessages struct{ db *memDB }

func (r memMessages) Append(_ context.Context, msg *domain.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.appendErr != nil {
		if err := r.db.appendErr(*msg); err != nil {
			return err
		}
	}
	r.db.nextMsgID++
	msg.ID = r.db.nextMsgID
	msg.CreatedAt = time.Now()
	r.db.messages = append(r.db.messages, *msg)
	return nil
}

func (r memMessages) ListRecent(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	for _, m := range r.db.messagesFor(conversationID) {
		if m.Sender != domain.SenderSystem {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r memMessages) SystemMessage(_ context.Context, conversationID string) (*domain.Message, error) {
	for _, m := range r.db.messagesFor(conversationID) {
		if m.Sender == domain.SenderSystem {
			return &m, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memMessages) ListByConversation(_ context.Context, conversationID string) ([]domain.Message, error) {
	msgs := r.db.messagesFor(conversationID)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

type memAnalytics struct{ db *memDB }

func (r memAnalytics) Get(_ context.Context, conversationID string) (*domain.ConversationAnalytics, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if a, ok := r.db.analytics[conversationID]; ok {
		out := *a
		return &out, nil
	}
	return &domain.ConversationAnalytics{ConversationID: conversationID, ResolutionType: domain.ResolutionPending}, nil
}

func (r memAnalytics) Apply(_ context.Context, conversationID string, d domain.AnalyticsDelta) (*domain.ConversationAnalytics, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.analytics[conversationID]
	if !ok {
		a = &domain.ConversationAnalytics{ConversationID: conversationID, ResolutionType: domain.ResolutionPending}
		r.db.analytics[conversationID] = a
	}
	a.MessageCount += d.Messages
	a.ToolCallsCount += d.ToolCalls
	a.WasEscalated = a.WasEscalated || d.Escalated
	if d.Resolution != nil {
		a.ResolutionType = *d.Resolution
	}
	out := *a
	return &out, nil
}

type memStores struct{ db *memDB }

func (r memStores) GetByID(_ context.Context, id string) (*domain.Store, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.stores[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

type memSettings struct{ db *memDB }

func (r memSettings) GetPolicy(_ context.Context, storeID string) (domain.StoreSettings, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if s, ok := r.db.settings[storeID]; ok {
		return s, nil
	}
	return domain.DefaultStoreSettings(storeID), nil
}

// memEscalator mirrors the escalation service: ticket, open→escalated, analytics.
type memEscalator struct{ db *memDB }

func (e memEscalator) Escalate(_ context.Context, req domain.EscalationRequest) (*domain.Ticket, error) {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	t := domain.Ticket{
		ID:             int64(len(e.db.tickets) + 1),
		ExternalKey:    fmt.Sprintf("ESC-%08d", len(e.db.tickets)+1),
		ConversationID: req.ConversationID,
		CustomerEmail:  req.CustomerEmail,
		Reason:         req.Reason,
		Source:         req.Source,
		Status:         domain.TicketStatusOpen,
	}
	e.db.tickets = append(e.db.tickets, t)
	if c, ok := e.db.convs[req.ConversationID]; ok && c.Status == domain.ConversationStatusOpen {
		c.Status = domain.ConversationStatusEscalated
	}
	return &t, nil
}

// stubLLM replays scripted responses and records every request.
type stubLLM struct {
	mu        sync.Mutex
	requests  []llm.Request
	responses []*llm.Response
	err       error
	delay     time.Duration
	inFlight  int
	maxFlight int
}

func (s *stubLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	idx := len(s.requests) - 1
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return &llm.Response{Text: "How else can I help?"}, nil
}

func (s *stubLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubLLM) request(i int) llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

// stubTools records identities and answers from a script keyed by tool name.
type stubTools struct {
	mu         sync.Mutex
	identities []tools.Identity
	calls      []tools.Call
	handle     func(tools.Identity, tools.Call) tools.Result
}

func (s *stubTools) Catalog() []tools.Definition { return tools.Catalog() }

func (s *stubTools) Execute(_ context.Context, id tools.Identity, call tools.Call) tools.Result {
	s.mu.Lock()
	s.identities = append(s.identities, id)
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	if s.handle != nil {
		res := s.handle(id, call)
		res.CallID, res.Name = call.ID, call.Name
		return res
	}
	return tools.Result{CallID: call.ID, Name: call.Name, Status: tools.StatusSuccess, Value: map[string]string{"status": "success"}}
}
