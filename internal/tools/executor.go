package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/spec-kit/support-agent/internal/domain"
	"github.com/spec-kit/support-agent/internal/repository"
)

// Identity is the verified caller context. It is the only source of the
// customer email and conversation id a tool sees.
type Identity struct {
	Email          string
	ConversationID string
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Result is the JSON-serializable outcome of a call.
type Result struct {
	CallID string
	Name   string
	Status Status
	Value  any
	// Escalated is set when the call moved the conversation to a human.
	Escalated bool
}

// JSON renders Value for the tool message.
func (r Result) JSON() string {
	raw, err := json.Marshal(r.Value)
	if err != nil {
		return `{"error":"unserializable tool result","status":"error"}`
	}
	return string(raw)
}

// Escalator opens a ticket and hands the conversation to a human.
type Escalator interface {
	Escalate(ctx context.Context, req domain.EscalationRequest) (*domain.Ticket, error)
}

// Dependencies bundles the collaborators tools read and mutate.
type Dependencies struct {
	Orders    repository.OrderRepository
	Returns   repository.ReturnRepository
	Stores    repository.StoreRepository
	Settings  repository.SettingsRepository
	Escalator Escalator
	Logger    *zap.Logger
	// Now overrides the clock used for return windows.
	Now func() time.Time
}

// Executor validates and dispatches tool calls.
type Executor struct {
	orders    repository.OrderRepository
	returns   repository.ReturnRepository
	stores    repository.StoreRepository
	settings  repository.SettingsRepository
	escalator Escalator
	logger    *zap.Logger
	now       func() time.Time
	schemas   map[Name]*gojsonschema.Schema
}

// NewExecutor compiles the catalog schemas and returns an executor.
func NewExecutor(deps Dependencies) (*Executor, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	schemas := make(map[Name]*gojsonschema.Schema, len(catalog))
	for name, def := range catalog {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Parameters))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", name, err)
		}
		schemas[name] = schema
	}
	return &Executor{
		orders:    deps.Orders,
		returns:   deps.Returns,
		stores:    deps.Stores,
		settings:  deps.Settings,
		escalator: deps.Escalator,
		logger:    logger,
		now:       now,
		schemas:   schemas,
	}, nil
}

// Catalog returns the model-facing definitions.
func (e *Executor) Catalog() []Definition {
	return Catalog()
}

// identityKeys are dropped from model arguments before validation.
var identityKeys = []string{"email", "conversation_id"}

// Execute runs one call. Failures come back as structured results, never as errors.
func (e *Executor) Execute(ctx context.Context, id Identity, call Call) Result {
	name, ok := ParseName(call.Name)
	if !ok {
		e.logger.Warn("unknown tool requested", zap.String("tool", call.Name), zap.String("conversation_id", id.ConversationID))
		return Result{CallID: call.ID, Name: call.Name, Status: StatusError, Value: map[string]string{"error": "tool not found"}}
	}

	args, failure := e.decodeArguments(name, id, call.Arguments)
	if failure != nil {
		return Result{CallID: call.ID, Name: call.Name, Status: StatusFailed, Value: failure}
	}

	res := e.dispatch(ctx, name, id, args)
	res.CallID = call.ID
	res.Name = string(name)
	return res
}

func (e *Executor) decodeArguments(name Name, id Identity, raw json.RawMessage) (map[string]any, *Failure) {
	args := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &Failure{Error: "invalid arguments", Status: StatusFailed, Details: []string{"arguments must be a JSON object"}}
		}
	}

	for _, key := range identityKeys {
		supplied, present := args[key]
		if !present {
			continue
		}
		delete(args, key)
		verified := id.Email
		if key == "conversation_id" {
			verified = id.ConversationID
		}
		if s, _ := supplied.(string); s != verified {
			e.logger.Warn("model supplied identity field ignored",
				zap.String("tool", string(name)),
				zap.String("field", key),
				zap.String("conversation_id", id.ConversationID))
		}
	}

	result, err := e.schemas[name].Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return nil, &Failure{Error: "invalid arguments", Status: StatusFailed, Details: []string{err.Error()}}
	}
	if !result.Valid() {
		details := make([]string, len(result.Errors()))
		for i, verr := range result.Errors() {
			details[i] = verr.String()
		}
		return nil, &Failure{Error: "invalid arguments", Status: StatusFailed, Details: details}
	}
	return args, nil
}

func (e *Executor) dispatch(ctx context.Context, name Name, id Identity, args map[string]any) Result {
	switch name {
	case ListCustomerOrders:
		return e.listCustomerOrders(ctx, id)
	case GetOrderDetails:
		return e.getOrderDetails(ctx, id, stringArg(args, "order_id_or_tracking"))
	case CheckReturnEligibility:
		return e.checkReturnEligibility(ctx, id, stringArg(args, "order_id_or_tracking"))
	case CancelOrder:
		return e.cancelOrder(ctx, id, stringArg(args, "order_id_or_tracking"))
	case CreateSupportTicket:
		return e.createSupportTicket(ctx, id, stringArg(args, "reason"))
	default:
		panic(fmt.Sprintf("tools: unhandled tool %q", name))
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func failed(status Status, message string) Result {
	return Result{Status: status, Value: Failure{Error: message, Status: status}}
}
