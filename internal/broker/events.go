package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"fullsound/internal/models"
	"fullsound/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	orders  *Producer
	gateway *Producer
}

// NewEventPublisher creates a publisher writing order events and gateway notifications to their own topics
func NewEventPublisher(orders, gateway *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, gateway: gateway}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentIntentCreated publishes PaymentIntentCreated event
func (ep *EventPublisher) PublishPaymentIntentCreated(ctx context.Context, event *models.PaymentIntentCreatedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentSucceeded publishes PaymentSucceeded event
func (ep *EventPublisher) PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentFailed publishes PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishGatewayIntentUpdated queues a verified webhook for the payment worker, keyed by intent
func (ep *EventPublisher) PublishGatewayIntentUpdated(ctx context.Context, event *models.GatewayIntentUpdatedEvent) error {
	return ep.gateway.PublishEvent(ctx, "intent-"+event.IntentID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onGatewayIntentUpdated func(context.Context, *models.GatewayIntentUpdatedEvent) error
	logger                 *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnGatewayIntentUpdated registers a handler for GatewayIntentUpdated events
func (eh *EventHandler) OnGatewayIntentUpdated(handler func(context.Context, *models.GatewayIntentUpdatedEvent) error) {
	eh.onGatewayIntentUpdated = handler
}

// HandleMessage routes messages to appropriate handlers.
// Payloads that fail to decode are logged and dropped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Error("Dropping malformed event", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeGatewayIntentUpdated:
		if eh.onGatewayIntentUpdated != nil {
			var event models.GatewayIntentUpdatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.logger.Error("Dropping malformed GatewayIntentUpdated event",
					zap.String("event_id", baseEvent.EventID),
					zap.Error(err))
				return nil
			}
			return eh.onGatewayIntentUpdated(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
