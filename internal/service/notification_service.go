package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-agent/internal/events"
)

// EventSink receives events for delivery outside the process.
type EventSink interface {
	Send(ctx context.Context, event events.Event) error
}

// NotificationService logs domain events and hands them to an outbound sink.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sink       EventSink
}

// NewNotificationService creates the service. sink may be nil.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, sink EventSink) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		sink:       sink,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes() {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("conversation_id", event.ConversationID),
		zap.Any("payload", event.Payload))
	if n.sink == nil {
		return nil
	}
	return n.sink.Send(ctx, event)
}
