package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, nil, nil); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestKafkaPublisherTopicMapping(t *testing.T) {
	publisher, err := NewKafkaPublisher([]string{"localhost:9092"}, map[string]string{
		TypeInsightShared: "migru.insights",
	}, nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	t.Cleanup(func() {
		_ = publisher.Close()
	})

	if got := publisher.topicFor(TypeInsightShared); got != "migru.insights" {
		t.Fatalf("expected mapped topic, got %q", got)
	}
	if got := publisher.topicFor(TypeWellnessAlert); got != TypeWellnessAlert {
		t.Fatalf("expected event type as fallback topic, got %q", got)
	}
}

func TestKafkaPublisherWritesAsynchronously(t *testing.T) {
	publisher, err := NewKafkaPublisher([]string{"localhost:9092"}, nil, nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	t.Cleanup(func() {
		_ = publisher.Close()
	})

	if !publisher.writer.Async || publisher.writer.Completion == nil {
		t.Fatal("expected an async writer with a completion callback")
	}
	if publisher.writer.BatchTimeout > publisher.writer.WriteTimeout {
		t.Fatalf("expected a short batch timeout, got %s", publisher.writer.BatchTimeout)
	}
}

func TestKafkaPublisherLogsFailedDeliveries(t *testing.T) {
	var buffer bytes.Buffer
	publisher, err := NewKafkaPublisher([]string{"localhost:9092"}, map[string]string{
		TypeWellnessAlert: "migru.wellness.alert",
	}, slog.New(slog.NewJSONHandler(&buffer, nil)))
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	t.Cleanup(func() {
		_ = publisher.Close()
	})

	message := publisher.message(TypeWellnessAlert, []byte(`{}`), "u-7f3a")
	publisher.onCompletion([]kafka.Message{message}, nil)
	if buffer.Len() != 0 {
		t.Fatalf("expected successful deliveries to be silent, got %s", buffer.String())
	}

	publisher.onCompletion([]kafka.Message{message}, errors.New("broker unreachable"))
	line := buffer.String()
	for _, want := range []string{`"event_type":"wellness.alert"`, `"user":"u-7f3a"`, `"topic":"migru.wellness.alert"`, "broker unreachable"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
}

func TestLogPublisherWritesStructuredLine(t *testing.T) {
	var buffer bytes.Buffer
	publisher := NewLogPublisher(slog.New(slog.NewJSONHandler(&buffer, nil)))

	if err := publisher.Publish(context.Background(), TypeWellnessAlert, []byte(`{"kind":"high_physiological_stress"}`), "u-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	line := buffer.String()
	if !strings.Contains(line, `"event_type":"wellness.alert"`) || !strings.Contains(line, `"key":"u-1"`) {
		t.Fatalf("unexpected log line %s", line)
	}
}
