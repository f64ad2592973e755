package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eventpass/eventpass/internal/domain"
	"github.com/eventpass/eventpass/pkg/kafka"
	"github.com/google/uuid"
)

// Notifier publishes lifecycle events to downstream consumers (mailer,
// ticket renderer) after the owning transaction commits.
type Notifier interface {
	// PublishRegistrationEvent publishes a registration lifecycle transition
	PublishRegistrationEvent(ctx context.Context, eventType domain.LifecycleEventType, reg *domain.Registration) error

	// PublishCheckIn publishes a consumed ticket
	PublishCheckIn(ctx context.Context, ticket *domain.Ticket) error

	// Close closes the notifier
	Close() error
}

// KafkaNotifier implements Notifier using Kafka
type KafkaNotifier struct {
	producer    *kafka.Producer
	topic       string
	serviceName string
}

// NotifierConfig contains configuration for the notifier
type NotifierConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaNotifier creates a new Kafka notifier
func NewKafkaNotifier(ctx context.Context, cfg *NotifierConfig) (*KafkaNotifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notifier config is required")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "registration-events"
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "eventpass"
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "eventpass-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		BatchSize:     100,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaNotifier{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}, nil
}

// PublishRegistrationEvent publishes a registration lifecycle transition
func (n *KafkaNotifier) PublishRegistrationEvent(ctx context.Context, eventType domain.LifecycleEventType, reg *domain.Registration) error {
	eventID := uuid.New().String()
	event := domain.NewRegistrationEvent(eventType, reg, eventID)
	return n.publish(ctx, event)
}

// PublishCheckIn publishes a consumed ticket
func (n *KafkaNotifier) PublishCheckIn(ctx context.Context, ticket *domain.Ticket) error {
	eventID := uuid.New().String()
	event := domain.NewCheckInEvent(ticket, eventID)
	return n.publish(ctx, event)
}

// Close closes the notifier
func (n *KafkaNotifier) Close() error {
	if n.producer != nil {
		n.producer.Close()
	}
	return nil
}

func (n *KafkaNotifier) publish(ctx context.Context, event *domain.LifecycleEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := map[string]string{
		"event_type":   string(event.Type),
		"event_id":     event.EventID,
		"source":       n.serviceName,
		"content_type": "application/json",
	}

	msg := &kafka.Message{
		Topic:     n.topic,
		Key:       []byte(event.Key()),
		Value:     value,
		Headers:   headers,
		Timestamp: time.Now(),
	}

	if err := n.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	return nil
}

// NoOpNotifier is a no-op implementation of Notifier for testing and for
// running without a broker
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new no-op notifier
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// PublishRegistrationEvent is a no-op
func (n *NoOpNotifier) PublishRegistrationEvent(ctx context.Context, eventType domain.LifecycleEventType, reg *domain.Registration) error {
	return nil
}

// PublishCheckIn is a no-op
func (n *NoOpNotifier) PublishCheckIn(ctx context.Context, ticket *domain.Ticket) error {
	return nil
}

// Close is a no-op
func (n *NoOpNotifier) Close() error {
	return nil
}
