package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/events"
)

// EventPublisher forwards events to an external channel.
type EventPublisher interface {
	PublishJSON(ctx context.Context, channel string, payload any) error
}

// NotificationService handles emitting notifications for lifecycle events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	publisher  EventPublisher
	channel    string
}

// NewNotificationService creates the service. A nil publisher only logs.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, publisher EventPublisher, channel string) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "notifications")),
		publisher:  publisher,
		channel:    strings.TrimSpace(channel),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllTypes {
		n.dispatcher.Subscribe(eventType, n.handleEvent)
	}
	n.dispatcher.Subscribe(events.EventTicketNeedsReview, n.handleNeedsReview)
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("ticket_no", event.TicketNo),
		zap.String("actor", event.Actor),
		zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

// handleNeedsReview flags tickets that wait on a human.
func (n *NotificationService) handleNeedsReview(ctx context.Context, event events.Event) error {
	n.logger.Info("ticket awaiting human review", zap.String("ticket_no", event.TicketNo))
	return nil
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	if n.publisher == nil || n.channel == "" {
		return nil
	}
	if err := n.publisher.PublishJSON(ctx, n.channel, event); err != nil {
		n.logger.Warn("failed to publish event",
			zap.String("channel", n.channel),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return err
	}
	return nil
}
