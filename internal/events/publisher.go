package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TypeInsightShared = "insight.shared"
	TypeWellnessAlert = "wellness.alert"
)

const eventTypeHeader = "event_type"

// KafkaPublisher writes notifications asynchronously. Delivery failures surface in the
// completion log, keyed by the pseudonymous user tag.
type KafkaPublisher struct {
	writer       *kafka.Writer
	topicByEvent map[string]string
	logger       *slog.Logger
}

func NewKafkaPublisher(brokers []string, topicByEvent map[string]string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if logger == nil {
		logger = slog.Default()
	}

	publisher := &KafkaPublisher{
		topicByEvent: topicByEvent,
		logger:       logger.With("component", "kafka_publisher"),
	}
	publisher.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		Completion:             publisher.onCompletion,
	}
	return publisher, nil
}

// Publish keys messages by user tag so one user's notifications stay on one partition.
// It returns once the message is buffered.
func (publisher *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	return publisher.writer.WriteMessages(ctx, publisher.message(eventType, payload, partitionKey))
}

func (publisher *KafkaPublisher) message(eventType string, payload []byte, partitionKey string) kafka.Message {
	return kafka.Message{
		Topic:   publisher.topicFor(eventType),
		Key:     []byte(partitionKey),
		Value:   payload,
		Headers: []kafka.Header{{Key: eventTypeHeader, Value: []byte(eventType)}},
		Time:    time.Now().UTC(),
	}
}

func (publisher *KafkaPublisher) onCompletion(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, message := range messages {
		publisher.logger.Warn("notification delivery failed",
			"event_type", headerValue(message.Headers, eventTypeHeader),
			"topic", message.Topic,
			"user", string(message.Key),
			"error", err,
		)
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, header := range headers {
		if header.Key == key {
			return string(header.Value)
		}
	}
	return ""
}

func (publisher *KafkaPublisher) topicFor(eventType string) string {
	if mapped, ok := publisher.topicByEvent[eventType]; ok && mapped != "" {
		return mapped
	}
	return eventType
}

// Close flushes buffered messages.
func (publisher *KafkaPublisher) Close() error {
	return publisher.writer.Close()
}

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "publisher")}
}

func (publisher *LogPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	publisher.logger.InfoContext(ctx, "notification",
		"event_type", eventType,
		"key", partitionKey,
		"bytes", len(payload),
	)
	return nil
}

func (publisher *LogPublisher) Close() error {
	return nil
}
