package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-agent/internal/api/http/handlers"
	"github.com/spec-kit/support-agent/internal/auth"
	"github.com/spec-kit/support-agent/internal/config"
	"github.com/spec-kit/support-agent/internal/conversation"
	"github.com/spec-kit/support-agent/internal/domain"
	"github.com/spec-kit/support-agent/internal/guardrail"
	"github.com/spec-kit/support-agent/internal/observability"
	"github.com/spec-kit/support-agent/internal/repository"
	"github.com/spec-kit/support-agent/internal/service"
)

type fakeEngine struct {
	lastReq conversation.TurnRequest
	err     error
	history []conversation.HistoryEntry
}

func (f *fakeEngine) PostMessage(_ context.Context, req conversation.TurnRequest) (*conversation.TurnResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	id := req.ConversationID
	if id == "" {
		id = "generated-id"
	}
	return &conversation.TurnResult{Reply: "Hello! How can I help?", ConversationID: id, Status: domain.ConversationStatusOpen}, nil
}

func (f *fakeEngine) GetHistory(_ context.Context, conversationID, email string) ([]conversation.HistoryEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

type fakeConsole struct {
	resolvedBy string
	err        error
}

func (f *fakeConsole) ListTickets(context.Context, service.TicketListFilter) ([]domain.Ticket, error) {
	return []domain.Ticket{{ID: 7, ExternalKey: "ESC-0000ABCD", ConversationID: "c-1", Status: domain.TicketStatusOpen, Source: domain.TicketSourceAuto}}, f.err
}

func (f *fakeConsole) ResolveTicket(_ context.Context, staff *domain.StaffMember, ticketID int64, _ *string) (*domain.Ticket, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.resolvedBy = staff.ID
	return &domain.Ticket{ID: ticketID, ExternalKey: "ESC-0000ABCD", Status: domain.TicketStatusResolved}, nil
}

func (f *fakeConsole) CloseConversation(_ context.Context, _ *domain.StaffMember, id string) (*domain.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Conversation{ID: id, Status: domain.ConversationStatusClosed}, nil
}

func (f *fakeConsole) PostHumanMessage(_ context.Context, _ *domain.StaffMember, id, text string) (*domain.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Message{ID: 3, ConversationID: id, Sender: domain.SenderHuman, Text: &text}, nil
}

func (f *fakeConsole) Transcript(_ context.Context, id string) (*domain.Conversation, []domain.Message, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	text := "hi"
	return &domain.Conversation{ID: id}, []domain.Message{{ID: 1, Sender: domain.SenderUser, Text: &text}}, nil
}

func (f *fakeConsole) Analytics(_ context.Context, id string) (*domain.ConversationAnalytics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ConversationAnalytics{ConversationID: id, MessageCount: 4, ResolutionType: domain.ResolutionPending}, nil
}

type staffStore struct {
	members map[string]*domain.StaffMember
}

func (s *staffStore) Create(context.Context, *domain.StaffMember) error { return nil }

func (s *staffStore) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	if m, ok := s.members[id]; ok {
		return m, nil
	}
	return nil, pgx.ErrNoRows
}

func (s *staffStore) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	for _, m := range s.members {
		if m.Email == email {
			return m, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *staffStore) Update(context.Context, *domain.StaffMember) error { return nil }

func (s *staffStore) List(context.Context, repository.StaffFilter) ([]domain.StaffMember, error) {
	out := make([]domain.StaffMember, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, *m)
	}
	return out, nil
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

type harness struct {
	app     *fiber.App
	engine  *fakeEngine
	console *fakeConsole
	authSvc *service.AuthService
	reg     *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hash, err := auth.HashPassword("admin123", 4)
	require.NoError(t, err)
	staff := &staffStore{members: map[string]*domain.StaffMember{
		"admin-1": {ID: "admin-1", Email: "admin@example.com", PasswordHash: hash, Role: domain.StaffRoleAdmin, Active: true},
		"agent-1": {ID: "agent-1", Email: "agent@example.com", PasswordHash: hash, Role: domain.StaffRoleAgent, Active: true},
	}}
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "router-secret", AccessTokenTTLMinutes: 5, BcryptCost: 4}}
	authSvc := service.NewAuthService(cfg, service.AuthDependencies{StaffRepo: staff})
	staffSvc := service.NewStaffService(cfg, service.StaffDependencies{StaffRepo: staff})

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	h := &harness{engine: &fakeEngine{}, console: &fakeConsole{}, authSvc: authSvc, reg: reg}

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-agent", "test", map[string]handlers.Pinger{"postgres": okPinger{}}),
		Chat:           handlers.NewChatHandler(h.engine),
		Staff:          handlers.NewStaffHandler(authSvc, staffSvc),
		StaffTickets:   handlers.NewStaffTicketsHandler(h.console),
		Customers:      handlers.NewCustomerHandler(authSvc),
		AuthMiddleware: auth.NewAuthMiddleware(authSvc.TokenManager(), staff),
		Access:         guardrail.DefaultSet().Default(),
		Gatherer:       reg,
		DevTokens:      true,
	})
	h.app = app
	return h
}

func (h *harness) customerToken(t *testing.T, email string) string {
	t.Helper()
	token, _, err := h.authSvc.IssueCustomerToken(email)
	require.NoError(t, err)
	return token
}

func (h *harness) staffToken(t *testing.T, id string, role domain.StaffRole) string {
	t.Helper()
	token, _, err := h.authSvc.TokenManager().GenerateStaffToken(id, role)
	require.NoError(t, err)
	return token
}

func (h *harness) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestChatUsesVerifiedEmailFromToken(t *testing.T) {
	h := newHarness(t)
	token := h.customerToken(t, "User@Example.com")

	status, body := h.do(t, http.MethodPost, "/chat", token, `{"message":"where is my order?","store_id":"s1"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hello! How can I help?", body["response"])
	assert.Equal(t, "generated-id", body["session_id"])
	assert.Equal(t, "open", body["status"])
	assert.Equal(t, "user@example.com", h.engine.lastReq.CustomerEmail)
	assert.Equal(t, "s1", h.engine.lastReq.StoreID)
	assert.Equal(t, domain.DefaultChannel, h.engine.lastReq.Channel)
}

func TestChatIgnoresEmailInBody(t *testing.T) {
	h := newHarness(t)
	token := h.customerToken(t, "user@example.com")

	status, _ := h.do(t, http.MethodPost, "/chat", token, `{"message":"hi","email":"victim@example.com","session_id":"c-9"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "user@example.com", h.engine.lastReq.CustomerEmail)
	assert.Equal(t, "c-9", h.engine.lastReq.ConversationID)
}

func TestChatRequiresCustomerToken(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodPost, "/chat", "", `{"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = h.do(t, http.MethodPost, "/chat", h.staffToken(t, "agent-1", domain.StaffRoleAgent), `{"message":"hi"}`)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{conversation.ErrBusy, http.StatusTooManyRequests, "CONVERSATION_BUSY"},
		{conversation.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{errors.New("llm exploded: secret upstream detail"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		h := newHarness(t)
		h.engine.err = tc.err
		status, body := h.do(t, http.MethodPost, "/chat", h.customerToken(t, "user@example.com"), `{"message":"hi"}`)
		assert.Equal(t, tc.status, status, tc.code)
		assert.Equal(t, tc.code, errorCode(body))
		e, _ := body["error"].(map[string]any)
		assert.NotContains(t, e["message"], "secret upstream detail")
	}
}

func TestChatRejectsBlankMessage(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodPost, "/chat", h.customerToken(t, "user@example.com"), `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestChatHistory(t *testing.T) {
	h := newHarness(t)
	h.engine.history = []conversation.HistoryEntry{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	status, body := h.do(t, http.MethodGet, "/chat/c-1/history", h.customerToken(t, "user@example.com"), "")
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].([]any)
	require.Len(t, data, 2)
	first, _ := data[0].(map[string]any)
	assert.Equal(t, "user", first["role"])

	h.engine.err = conversation.ErrNotFound
	status, body = h.do(t, http.MethodGet, "/chat/missing/history", h.customerToken(t, "user@example.com"), "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestStaffLogin(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodPost, "/auth/staff/login", "", `{"email":"admin@example.com","password":"admin123"}`)
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].(map[string]any)
	authData, _ := data["auth"].(map[string]any)
	assert.NotEmpty(t, authData["token"])
	staff, _ := data["staff"].(map[string]any)
	assert.NotContains(t, staff, "password_hash")

	status, body = h.do(t, http.MethodPost, "/auth/staff/login", "", `{"email":"admin@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestStaffRoutesEnforceActions(t *testing.T) {
	h := newHarness(t)
	agent := h.staffToken(t, "agent-1", domain.StaffRoleAgent)
	admin := h.staffToken(t, "admin-1", domain.StaffRoleAdmin)
	customer := h.customerToken(t, "user@example.com")

	status, body := h.do(t, http.MethodGet, "/staff/tickets?status=open", agent, "")
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].([]any)
	assert.Len(t, data, 1)

	status, _ = h.do(t, http.MethodGet, "/staff/tickets", customer, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodGet, "/staff/conversations/c-1/analytics", agent, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(t, http.MethodGet, "/staff/conversations/c-1/analytics", admin, "")
	require.Equal(t, http.StatusOK, status)
	data2, _ := body["data"].(map[string]any)
	assert.EqualValues(t, 4, data2["message_count"])
}

func TestStaffTakeoverFlow(t *testing.T) {
	h := newHarness(t)
	agent := h.staffToken(t, "agent-1", domain.StaffRoleAgent)

	status, _ := h.do(t, http.MethodPost, "/staff/tickets/7/resolve", agent, `{"note":"refunded"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "agent-1", h.console.resolvedBy)

	status, body := h.do(t, http.MethodPost, "/staff/tickets/abc/resolve", agent, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, _ = h.do(t, http.MethodPost, "/staff/conversations/c-1/messages", agent, `{"body":"I'm here to help"}`)
	assert.Equal(t, http.StatusCreated, status)

	status, _ = h.do(t, http.MethodGet, "/staff/conversations/c-1/messages", agent, "")
	assert.Equal(t, http.StatusOK, status)

	h.console.err = service.ErrOpenTickets
	status, body = h.do(t, http.MethodPost, "/staff/conversations/c-1/close", agent, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	h.console.err = pgx.ErrNoRows
	status, _ = h.do(t, http.MethodGet, "/staff/conversations/missing/messages", agent, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStaffMembersAdminOnly(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(t, http.MethodGet, "/staff/members", h.staffToken(t, "agent-1", domain.StaffRoleAgent), "")
	assert.Equal(t, http.StatusForbidden, status)

	status, body := h.do(t, http.MethodGet, "/staff/members", h.staffToken(t, "admin-1", domain.StaffRoleAdmin), "")
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].([]any)
	assert.Len(t, data, 2)
}

func TestDevTokenAndHealth(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, http.MethodPost, "/auth/customer/dev-token", "", `{"email":"shopper@example.com"}`)
	require.Equal(t, http.StatusCreated, status)
	data, _ := body["data"].(map[string]any)
	authData, _ := data["auth"].(map[string]any)
	token, _ := authData["token"].(string)
	claims, err := h.authSvc.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "shopper@example.com", claims.Email)

	status, body = h.do(t, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, _ = h.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestUnknownRouteRendersErrorEnvelope(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/health/live", "", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "support_agent_http_requests_total")
}

func TestReadyReportsFailingDependency(t *testing.T) {
	app := fiber.New()
	health := handlers.NewHealthHandler("support-agent", "test", map[string]handlers.Pinger{
		"postgres": okPinger{},
		"redis":    okPinger{err: errors.New("connection refused")},
	})
	app.Get("/health/ready", health.Ready)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDevTokenRouteDisabledOutsideDevelopment(t *testing.T) {
	app := fiber.New()
	authSvc := service.NewAuthService(config.Config{Auth: config.AuthConfig{JWTSecret: "s", AccessTokenTTLMinutes: 5}}, service.AuthDependencies{StaffRepo: &staffStore{}})
	RegisterMiddlewares(app, zap.NewNop(), nil, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-agent", "test", nil),
		Chat:           handlers.NewChatHandler(&fakeEngine{}),
		Staff:          handlers.NewStaffHandler(authSvc, nil),
		StaffTickets:   handlers.NewStaffTicketsHandler(&fakeConsole{}),
		Customers:      handlers.NewCustomerHandler(authSvc),
		AuthMiddleware: auth.NewAuthMiddleware(authSvc.TokenManager(), &staffStore{}),
		Access:         guardrail.DefaultSet().Default(),
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/auth/customer/dev-token", strings.NewReader(`{"email":"a@b.c"}`)), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
