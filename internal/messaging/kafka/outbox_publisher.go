package kafka

import (
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OutboxPublisher публикует сообщения transactional outbox в один топик.
// Ключом сообщения служит идентификатор агрегата, поэтому события одного заказа
// попадают в одну партицию и читаются по порядку.
type OutboxPublisher struct {
	producer *Producer
	topic    string
}

func NewOutboxPublisher(producer *Producer, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxPublisher{producer: producer, topic: topic}
}

// Topic возвращает топик публикации.
func (p *OutboxPublisher) Topic() string { return p.topic }

func (p *OutboxPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	body, err := json.Marshal(Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   p.producer.now().UTC(),
	})
	if err != nil {
		return errors.Join(domain.ErrOutboxPublish, err)
	}

	return p.producer.Send(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(event.EventType)},
			{Key: []byte(HeaderAggregateType), Value: []byte(event.AggregateType)},
			{Key: []byte(HeaderOutboxID), Value: []byte(event.ID)},
		},
	})
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
