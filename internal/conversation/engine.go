// Package conversation runs customer chat turns: guardrails, context
// replay from the message log, up to two model calls, tool execution and
// escalation to a human.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/spec-kit/support-agent/internal/domain"
	"github.com/spec-kit/support-agent/internal/guardrail"
	"github.com/spec-kit/support-agent/internal/llm"
	"github.com/spec-kit/support-agent/internal/observability"
	"github.com/spec-kit/support-agent/internal/repository"
	"github.com/spec-kit/support-agent/internal/tools"
	apperrors "github.com/spec-kit/support-agent/pkg/util/errorutil"
)

const (
	// EscalatedNotice is returned for every message once a human owns the conversation.
	EscalatedNotice = "Your conversation has been escalated to a human agent. They will reply here shortly."
	// ClosedNotice is returned for messages sent to a closed conversation.
	ClosedNotice = "This conversation has been closed. Please start a new conversation if you need more help."
	// EmptyReplyFallback replaces a blank model answer.
	EmptyReplyFallback = "I'm sorry, I couldn't put together an answer just now. Could you rephrase your question?"

	defaultExcerptChars = 120
	defaultLockTimeout  = 30 * time.Second
	turnMessages        = 2
)

var (
	// ErrForbidden is returned when the caller's email does not own the conversation.
	ErrForbidden = errors.New("conversation: caller does not own this conversation")
	// ErrNotFound is returned when a conversation id is unknown.
	ErrNotFound = errors.New("conversation: not found")
)

// ToolRunner executes catalog tools on behalf of the verified customer.
type ToolRunner interface {
	Catalog() []tools.Definition
	Execute(ctx context.Context, id tools.Identity, call tools.Call) tools.Result
}

// Dependencies wires the engine's collaborators.
type Dependencies struct {
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Analytics     repository.AnalyticsRepository
	Stores        repository.StoreRepository
	Settings      repository.SettingsRepository
	Guards        *guardrail.Set
	Tools         ToolRunner
	LLM           llm.Client
	Escalator     tools.Escalator
	Locker        TurnLocker
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Tracer        trace.Tracer

	HistoryWindow  int
	DefaultStoreID string
	LockTimeout    time.Duration
	ExcerptChars   int
}

// Engine is the per-turn state machine.
type Engine struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	analytics     repository.AnalyticsRepository
	stores        repository.StoreRepository
	settings      repository.SettingsRepository
	guards        *guardrail.Set
	tools         ToolRunner
	llm           llm.Client
	escalator     tools.Escalator
	locker        TurnLocker
	logger        *zap.Logger
	metrics       *observability.Metrics
	tracer        trace.Tracer

	window         int
	defaultStoreID string
	lockTimeout    time.Duration
	excerptChars   int
	catalog        []llm.Tool
}

// NewEngine constructs an Engine, filling defaults for optional fields.
func NewEngine(deps Dependencies) *Engine {
	e := &Engine{
		conversations:  deps.Conversations,
		messages:       deps.Messages,
		analytics:      deps.Analytics,
		stores:         deps.Stores,
		settings:       deps.Settings,
		guards:         deps.Guards,
		tools:          deps.Tools,
		llm:            deps.LLM,
		escalator:      deps.Escalator,
		locker:         deps.Locker,
		logger:         deps.Logger,
		metrics:        deps.Metrics,
		tracer:         deps.Tracer,
		window:         deps.HistoryWindow,
		defaultStoreID: deps.DefaultStoreID,
		lockTimeout:    deps.LockTimeout,
		excerptChars:   deps.ExcerptChars,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer(observability.TracerName)
	}
	if e.guards == nil {
		e.guards = guardrail.DefaultSet()
	}
	if e.locker == nil {
		e.locker = NewKeyedMutex()
	}
	if e.window <= 0 {
		e.window = DefaultHistoryWindow
	}
	if e.defaultStoreID == "" {
		e.defaultStoreID = "s1"
	}
	if e.lockTimeout <= 0 {
		e.lockTimeout = defaultLockTimeout
	}
	if e.excerptChars <= 0 {
		e.excerptChars = defaultExcerptChars
	}
	for _, def := range e.tools.Catalog() {
		e.catalog = append(e.catalog, llm.Tool{Name: string(def.Name), Description: def.Description, Parameters: def.Parameters})
	}
	return e
}

// TurnRequest is one inbound customer message. CustomerEmail must come from
// an authenticated principal.
type TurnRequest struct {
	ConversationID string
	CustomerEmail  string
	StoreID        string
	Channel        string
	Text           string
}

// TurnResult is what the customer sees.
type TurnResult struct {
	Reply          string
	ConversationID string
	Status         domain.ConversationStatus
}

// HistoryEntry is one customer-visible log line.
type HistoryEntry struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// PostMessage runs one turn. Turns on the same conversation are serialized.
func (e *Engine) PostMessage(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	email := normalizeEmail(req.CustomerEmail)
	if email == "" {
		return nil, apperrors.NewUnauthorized("verified customer email required")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, apperrors.NewValidationError("message is required", nil)
	}
	convID := strings.TrimSpace(req.ConversationID)
	if convID == "" {
		convID = uuid.NewString()
	}

	ctx, span := e.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(attribute.String("conversation.id", convID)))
	defer span.End()

	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	release, err := e.locker.Lock(lockCtx, convID)
	cancel()
	if err != nil {
		e.metrics.RecordTurn("busy")
		e.logger.Warn("turn lock not acquired", zap.String("conversation_id", convID), zap.Error(err))
		if errors.Is(err, ErrBusy) {
			return nil, err
		}
		return nil, apperrors.NewInternalError(err)
	}
	defer release()

	conv, err := e.load(ctx, convID, email)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return nil, err
		}
		return nil, e.fail(span, "load conversation", err, convID, email, req.StoreID)
	}

	storeID := strings.TrimSpace(req.StoreID)
	if conv != nil {
		storeID = conv.StoreID
		switch conv.Status {
		case domain.ConversationStatusEscalated:
			e.metrics.RecordTurn("escalated_notice")
			return &TurnResult{Reply: EscalatedNotice, ConversationID: conv.ID, Status: conv.Status}, nil
		case domain.ConversationStatusClosed:
			e.metrics.RecordTurn("closed_notice")
			return &TurnResult{Reply: ClosedNotice, ConversationID: conv.ID, Status: conv.Status}, nil
		}
	} else if storeID == "" {
		storeID = e.defaultStoreID
	}
	span.SetAttributes(attribute.String("store.id", storeID))

	guard := e.guards.ForStore(storeID)
	if check := guard.CheckInput(text); !check.Safe {
		e.metrics.RecordTurn("blocked")
		e.logger.Info("input blocked by guardrail",
			zap.String("conversation_id", convID),
			zap.String("store_id", storeID),
			zap.String("action", check.Action))
		return &TurnResult{Reply: check.Reason, ConversationID: convID, Status: domain.ConversationStatusOpen}, nil
	}

	if conv == nil {
		conv, err = e.create(ctx, convID, email, storeID, req.Channel)
		if err != nil {
			return nil, e.fail(span, "create conversation", err, convID, email, storeID)
		}
	}

	result, err := e.runTurn(ctx, conv, guard, text)
	if err != nil {
		return nil, e.fail(span, "turn failed", err, conv.ID, email, conv.StoreID)
	}
	e.metrics.RecordTurn("reply")
	return result, nil
}

func (e *Engine) runTurn(ctx context.Context, conv *domain.Conversation, guard *guardrail.Guard, text string) (*TurnResult, error) {
	if err := e.messages.Append(ctx, &domain.Message{
		ConversationID: conv.ID,
		Sender:         domain.SenderUser,
		Text:           &text,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	window, err := e.loadWindow(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	first, err := e.complete(ctx, "initial", llm.Request{Messages: window, Tools: e.catalog})
	if err != nil {
		return nil, err
	}

	reply := first.Text
	calls := first.ToolCalls
	if len(calls) > 0 {
		window, err = e.runTools(ctx, conv, window, first)
		if err != nil {
			return nil, err
		}
		second, err := e.complete(ctx, "followup", llm.Request{Messages: window})
		if err != nil {
			return nil, err
		}
		reply = second.Text
	}

	reply = guard.CheckOutput(reply)
	if strings.TrimSpace(reply) == "" {
		reply = EmptyReplyFallback
	}

	status, err := e.maybeEscalate(ctx, conv, guard, text, reply, len(calls) > 0)
	if err != nil {
		return nil, err
	}

	if err := e.messages.Append(ctx, &domain.Message{
		ConversationID: conv.ID,
		Sender:         domain.SenderAgent,
		Text:           &reply,
	}); err != nil {
		return nil, fmt.Errorf("persist agent reply: %w", err)
	}
	if _, err := e.analytics.Apply(ctx, conv.ID, domain.AnalyticsDelta{
		Messages:  turnMessages,
		ToolCalls: len(calls),
		Escalated: status == domain.ConversationStatusEscalated,
	}); err != nil {
		return nil, fmt.Errorf("update analytics: %w", err)
	}

	return &TurnResult{Reply: reply, ConversationID: conv.ID, Status: status}, nil
}

// runTools persists the assistant's tool request, then each result in
// request order, and returns the extended window.
func (e *Engine) runTools(ctx context.Context, conv *domain.Conversation, window []llm.Message, resp *llm.Response) ([]llm.Message, error) {
	calls := make([]llm.ToolCall, len(resp.ToolCalls))
	for i, c := range resp.ToolCalls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		calls[i] = c
	}

	encoded, err := llm.EncodeToolCalls(calls)
	if err != nil {
		return nil, err
	}
	request := &domain.Message{ConversationID: conv.ID, Sender: domain.SenderAgent, ToolCallsJSON: &encoded}
	if strings.TrimSpace(resp.Text) != "" {
		text := resp.Text
		request.Text = &text
	}
	if err := e.messages.Append(ctx, request); err != nil {
		return nil, fmt.Errorf("persist tool request: %w", err)
	}
	window = append(window, llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: calls})

	identity := tools.Identity{Email: conv.CustomerEmail, ConversationID: conv.ID}
	for _, call := range calls {
		res := e.executeTool(ctx, identity, call)
		content := res.JSON()
		callID, name := call.ID, call.Name
		if err := e.messages.Append(ctx, &domain.Message{
			ConversationID: conv.ID,
			Sender:         domain.SenderTool,
			Text:           &content,
			ToolCallID:     &callID,
			ToolName:       &name,
		}); err != nil {
			return nil, fmt.Errorf("persist tool result %s: %w", call.Name, err)
		}
		window = append(window, llm.Message{Role: llm.RoleTool, Content: content, ToolCallID: callID, Name: name})
	}
	return window, nil
}

func (e *Engine) executeTool(ctx context.Context, identity tools.Identity, call llm.ToolCall) tools.Result {
	ctx, span := e.tracer.Start(ctx, "conversation.tool_call", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	res := e.tools.Execute(ctx, identity, tools.Call{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
	span.SetAttributes(attribute.String("tool.status", string(res.Status)))
	e.metrics.RecordToolCall(call.Name, string(res.Status))
	if res.Status != tools.StatusSuccess {
		e.logger.Info("tool returned non-success",
			zap.String("tool", call.Name),
			zap.String("status", string(res.Status)),
			zap.String("conversation_id", identity.ConversationID))
	}
	return res
}

// maybeEscalate hands the conversation to a human when the guardrail asks for
// it and returns the status the customer should see.
func (e *Engine) maybeEscalate(ctx context.Context, conv *domain.Conversation, guard *guardrail.Guard, userText, reply string, ranTools bool) (domain.ConversationStatus, error) {
	status := conv.Status
	if ranTools {
		current, err := e.conversations.GetByID(ctx, conv.ID)
		if err != nil {
			return "", fmt.Errorf("reload conversation: %w", err)
		}
		status = current.Status
	}
	if status == domain.ConversationStatusEscalated {
		return status, nil
	}

	settings, err := e.settings.GetPolicy(ctx, conv.StoreID)
	if err != nil {
		return "", fmt.Errorf("load store policy: %w", err)
	}
	stats, err := e.analytics.Get(ctx, conv.ID)
	if err != nil {
		return "", fmt.Errorf("load analytics: %w", err)
	}
	guard = guard.WithMessageThreshold(settings.EscalationThreshold)
	if !guard.ShouldEscalate(reply, stats.MessageCount) && !guard.ShouldEscalate(userText, stats.MessageCount) {
		return status, nil
	}

	ticket, err := e.escalator.Escalate(ctx, domain.EscalationRequest{
		ConversationID: conv.ID,
		CustomerEmail:  conv.CustomerEmail,
		Reason:         AutoEscalationReason(userText, e.excerptChars),
		Source:         domain.TicketSourceAuto,
	})
	if err != nil {
		return "", fmt.Errorf("auto escalate: %w", err)
	}
	e.logger.Info("conversation auto-escalated",
		zap.String("conversation_id", conv.ID),
		zap.String("ticket", ticket.ExternalKey),
		zap.Int("prior_messages", stats.MessageCount))
	return domain.ConversationStatusEscalated, nil
}

func (e *Engine) loadWindow(ctx context.Context, conversationID string) ([]llm.Message, error) {
	system, err := e.messages.SystemMessage(ctx, conversationID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, fmt.Errorf("load system message: %w", err)
	}
	history, err := e.messages.ListRecent(ctx, conversationID, e.window)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return BuildWindow(system, history, e.window)
}

func (e *Engine) complete(ctx context.Context, phase string, req llm.Request) (*llm.Response, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.llm_call", trace.WithAttributes(
		attribute.String("llm.phase", phase),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
	))
	defer span.End()

	resp, err := e.llm.Complete(ctx, req)
	e.metrics.RecordLLMCall(phase, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, fmt.Errorf("llm %s call: %w", phase, err)
	}
	span.SetAttributes(attribute.Int("llm.tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

// load returns nil without error when the conversation does not exist yet.
func (e *Engine) load(ctx context.Context, convID, email string) (*domain.Conversation, error) {
	conv, err := e.conversations.GetByID(ctx, convID)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(conv.CustomerEmail, email) {
		return nil, ErrForbidden
	}
	return conv, nil
}

func (e *Engine) create(ctx context.Context, convID, email, storeID, channel string) (*domain.Conversation, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = domain.DefaultChannel
	}
	settings, err := e.settings.GetPolicy(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("load store policy: %w", err)
	}
	storeName := ""
	if store, err := e.stores.GetByID(ctx, storeID); err == nil {
		storeName = store.Name
	} else if !repository.IsNotFound(err) {
		e.logger.Warn("store lookup", zap.String("store_id", storeID), zap.Error(err))
	}

	conv := &domain.Conversation{
		ID:            convID,
		CustomerEmail: email,
		StoreID:       storeID,
		Channel:       channel,
		Status:        domain.ConversationStatusOpen,
	}
	if err := e.conversations.CreateWithSystemMessage(ctx, conv, SystemPrompt(settings, storeName, email)); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	e.logger.Info("conversation started",
		zap.String("conversation_id", conv.ID),
		zap.String("store_id", storeID),
		zap.String("channel", channel))
	return conv, nil
}

// GetHistory returns the customer-visible transcript. System and tool rows
// and tool-request rows without text are omitted.
func (e *Engine) GetHistory(ctx context.Context, conversationID, email string) ([]HistoryEntry, error) {
	conv, err := e.conversations.GetByID(ctx, conversationID)
	if repository.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(conv.CustomerEmail, normalizeEmail(email)) {
		return nil, ErrForbidden
	}

	msgs, err := e.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		var role string
		switch m.Sender {
		case domain.SenderUser:
			role = "user"
		case domain.SenderAgent:
			role = "assistant"
		case domain.SenderHuman:
			role = "human"
		default:
			continue
		}
		if m.Text == nil || strings.TrimSpace(*m.Text) == "" {
			continue
		}
		out = append(out, HistoryEntry{Role: role, Content: *m.Text, CreatedAt: m.CreatedAt})
	}
	return out, nil
}

// fail logs a turn failure with its context and hides the cause from the caller.
func (e *Engine) fail(span trace.Span, msg string, err error, convID, email, storeID string) error {
	e.logger.Error(msg,
		zap.Error(err),
		zap.String("conversation_id", convID),
		zap.String("customer_email", email),
		zap.String("store_id", storeID))
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	e.metrics.RecordTurn("error")
	return apperrors.NewInternalError(err)
}

// AutoEscalationReason builds the ticket reason for a guardrail-triggered escalation.
func AutoEscalationReason(userText string, maxChars int) string {
	return fmt.Sprintf("Auto-escalated: negative sentiment or long conversation. Customer wrote: %q", excerpt(userText, maxChars))
}

func excerpt(s string, maxChars int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if maxChars <= 0 || len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars]) + "..."
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
