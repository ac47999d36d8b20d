package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-agent/internal/events"
	"github.com/spec-kit/support-agent/internal/service"
)

// ErrQueueFull is returned when the forwarder cannot accept more events.
var ErrQueueFull = errors.New("event queue full")

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// EventForwarder decouples request handling from outbound delivery. Send
// enqueues; Run drains the queue into every sink.
type EventForwarder struct {
	queue       chan events.Event
	sinks       []service.EventSink
	logger      *zap.Logger
	sendTimeout time.Duration
	done        chan struct{}
}

// NewEventForwarder builds a forwarder with a bounded queue.
func NewEventForwarder(logger *zap.Logger, size int, sinks ...service.EventSink) *EventForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 256
	}
	return &EventForwarder{
		queue:       make(chan events.Event, size),
		sinks:       sinks,
		logger:      logger,
		sendTimeout: 5 * time.Second,
		done:        make(chan struct{}),
	}
}

// Send enqueues without blocking.
func (f *EventForwarder) Send(_ context.Context, event events.Event) error {
	select {
	case f.queue <- event:
		return nil
	default:
		f.logger.Warn("event dropped", zap.String("event_type", string(event.Type)), zap.String("event_id", event.ID))
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is left.
func (f *EventForwarder) Run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case event := <-f.queue:
			f.deliver(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-f.queue:
					f.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (f *EventForwarder) Wait() {
	<-f.done
}

func (f *EventForwarder) deliver(event events.Event) {
	for _, sink := range f.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), f.sendTimeout)
		if err := sink.Send(ctx, event); err != nil {
			f.logger.Error("event delivery failed",
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
		cancel()
	}
}
