// Package events publishes security-relevant authentication events to Kafka.
// Publication is best effort: a broker outage never fails the request that
// produced the event.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types emitted by the authentication engine.
const (
	TypeUserRegistered = "user_registered"
	TypeUserLogin      = "user_login"
	TypeRefreshReuse   = "refresh_reuse_detected"
	TypeFamilyRevoked  = "refresh_family_revoked"
)

// Event is the wire payload written to the security topic.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	ClientIP   string    `json:"client_ip,omitempty"`
	FamilyID   string    `json:"family_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is the security-event sink the Engine depends on.
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// KafkaPublisher writes events to one Kafka topic with async acks.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher describes the newkafkapublisher operation and its observable behavior.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Publish writes one event, keyed by user id so a user's events stay ordered
// within a partition. Failures are logged and swallowed.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode security event", "type", event.Type, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish security event", "type", event.Type, "error", err)
		return
	}
	p.logger.Debug("security event published", "type", event.Type, "user_id", event.UserID)
}

// Close describes the close operation and its observable behavior.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards all events. Used when no broker is configured and in
// tests.
type NopPublisher struct{}

// Publish describes the publish operation and its observable behavior.
func (NopPublisher) Publish(ctx context.Context, event Event) {}

// Close describes the close operation and its observable behavior.
func (NopPublisher) Close() error { return nil }
