package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes events as JSON keyed by tenant id.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
}

// NewKafkaWriter creates a writer for the events topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Gzip,
	}
}

// NewKafkaPublisher wraps writer. topic is only used in logs; the writer owns it.
func NewKafkaPublisher(writer MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Write(ctx context.Context, e *conversation.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.TenantID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
		Time: e.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	logrus.Debugf("published %s event %s to %s", e.Type, e.ID, p.topic)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
