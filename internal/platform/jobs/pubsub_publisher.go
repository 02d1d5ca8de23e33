package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/techmart/storefront-api/internal/services"
)

// OrderEventMessage is the JSON payload published for every order domain event.
type OrderEventMessage struct {
	Type                  string         `json:"type"`
	OrderID               string         `json:"orderId"`
	PreviousStatus        string         `json:"previousStatus,omitempty"`
	CurrentStatus         string         `json:"currentStatus,omitempty"`
	PreviousPaymentStatus string         `json:"previousPaymentStatus,omitempty"`
	CurrentPaymentStatus  string         `json:"currentPaymentStatus,omitempty"`
	ActorID               string         `json:"actorId,omitempty"`
	OccurredAt            time.Time      `json:"occurredAt"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// PubSubOrderEventPublisher publishes order events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent publishes the event and waits for the server acknowledgement.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}

	data, err := p.marshal(OrderEventMessage{
		Type:                  event.Type,
		OrderID:               event.OrderID,
		PreviousStatus:        event.PreviousStatus,
		CurrentStatus:         event.CurrentStatus,
		PreviousPaymentStatus: event.PreviousPaymentStatus,
		CurrentPaymentStatus:  event.CurrentPaymentStatus,
		ActorID:               event.ActorID,
		OccurredAt:            event.OccurredAt,
		Metadata:              event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderStatus", event.CurrentStatus)
	setAttr(attrs, "paymentStatus", event.CurrentPaymentStatus)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubOrderEventPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
