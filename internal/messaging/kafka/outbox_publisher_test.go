package kafka

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	publishedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-123" {
			return fmt.Errorf("unexpected key %s", key)
		}
		if !hasHeader(msg.Headers, HeaderEventType, domain.EventOrderPlaced) {
			return fmt.Errorf("event type header is missing")
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(value, &env); err != nil {
			return err
		}
		if env.ID != "outbox-1" || !env.PublishedAt.Equal(publishedAt) {
			return fmt.Errorf("unexpected envelope %+v", env)
		}
		if string(env.Payload) != `{"status":"pending"}` {
			return fmt.Errorf("unexpected payload %s", env.Payload)
		}
		return nil
	})

	producer := newProducer(mockProducer, nil)
	producer.now = func() time.Time { return publishedAt }
	publisher := NewOutboxPublisher(producer, "")

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-123",
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"status":"pending"}`),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newProducer(mockProducer, nil), TopicDeadLetterQueue)
	if publisher.Topic() != TopicDeadLetterQueue {
		t.Fatalf("unexpected topic %s", publisher.Topic())
	}

	err := publisher.Publish(domain.OutboxMessage{ID: "outbox-2", AggregateID: "order-234", Payload: []byte(`{}`)})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func hasHeader(headers []sarama.RecordHeader, key, value string) bool {
	for _, h := range headers {
		if string(h.Key) == key && bytes.Equal(h.Value, []byte(value)) {
			return true
		}
	}
	return false
}
