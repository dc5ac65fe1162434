package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing checkout lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishCheckoutStarted publishes CheckoutStarted event
func (ep *EventPublisher) PublishCheckoutStarted(ctx context.Context, event *models.CheckoutStartedEvent) error {
	return ep.producer.PublishEvent(ctx, paymentKey(event.PaymentID), event)
}

// PublishPaymentCaptured publishes PaymentCaptured event
func (ep *EventPublisher) PublishPaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error {
	return ep.producer.PublishEvent(ctx, paymentKey(event.PaymentID), event)
}

// PublishOrderCompleted publishes OrderCompleted event
func (ep *EventPublisher) PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, paymentKey(event.PaymentID), event)
}

// PublishCheckoutFailed publishes CheckoutFailed event
func (ep *EventPublisher) PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error {
	return ep.producer.PublishEvent(ctx, paymentKey(event.PaymentID), event)
}

// PublishCheckoutCancelled publishes CheckoutCancelled event
func (ep *EventPublisher) PublishCheckoutCancelled(ctx context.Context, event *models.CheckoutCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, event.EventID, event)
}

func paymentKey(paymentID string) string {
	return fmt.Sprintf("payment-%s", paymentID)
}

// EventHandler routes incoming checkout events to registered handlers
type EventHandler struct {
	onPaymentCaptured func(context.Context, *models.PaymentCapturedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentCaptured registers a handler for PaymentCaptured events
func (eh *EventHandler) OnPaymentCaptured(handler func(context.Context, *models.PaymentCapturedEvent) error) {
	eh.onPaymentCaptured = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentCaptured:
		if eh.onPaymentCaptured != nil {
			var event models.PaymentCapturedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentCaptured event: %w", err)
			}
			return eh.onPaymentCaptured(ctx, &event)
		}

	default:
		log.Printf("Ignoring event type: %s", baseEvent.EventType)
	}

	return nil
}
