// Package events publishes order lifecycle events for downstream fulfilment.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// TypeOrderCompleted is the event type attribute of OrderCompleted messages.
const TypeOrderCompleted = "order.completed"

// OrderCompleted is emitted once a payment succeeds.
type OrderCompleted struct {
	OrderID     string    `json:"orderId"`
	VisitorID   string    `json:"visitorId"`
	Domain      string    `json:"domain"`
	TemplateID  int       `json:"templateId"`
	Template    string    `json:"template"`
	Subtotal    string    `json:"subtotal"`
	Tax         string    `json:"tax"`
	Total       string    `json:"total"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method"`
	Provider    string    `json:"provider"`
	PaymentID   string    `json:"paymentId"`
	Customer    Customer  `json:"customer"`
	CompletedAt time.Time `json:"completedAt"`
}

// Customer is the contact subset of the personal info.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Country string `json:"country,omitempty"`
}

// Publisher delivers order events.
type Publisher interface {
	PublishOrderCompleted(ctx context.Context, event OrderCompleted) error
}

// NoopPublisher discards events.
type NoopPublisher struct{}

// PublishOrderCompleted implements Publisher.
func (NoopPublisher) PublishOrderCompleted(context.Context, OrderCompleted) error { return nil }

// PubSubPublisher publishes events as JSON messages on a topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher wraps topic.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishOrderCompleted implements Publisher and waits for the server acknowledgement.
func (p *PubSubPublisher) PublishOrderCompleted(ctx context.Context, event OrderCompleted) error {
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	attrs := map[string]string{"type": TypeOrderCompleted}
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "domain", event.Domain)
	setAttr(attrs, "method", event.Method)

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// Connect opens a Pub/Sub client for projectID and returns a publisher bound to topicID. The
// returned close function stops the topic and closes the client.
func Connect(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*PubSubPublisher, func() error, error) {
	if strings.TrimSpace(projectID) == "" || strings.TrimSpace(topicID) == "" {
		return nil, nil, errors.New("pubsub publisher: project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return publisher, func() error {
		topic.Stop()
		return client.Close()
	}, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
