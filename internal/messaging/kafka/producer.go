package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const defaultClientID = "storefront"

// ProducerConfig задаёт подключение к брокерам.
type ProducerConfig struct {
	Brokers  []string
	ClientID string
}

// Producer — синхронный Kafka producer с идемпотентной доставкой.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

// NewProducer подключается к брокерам.
func NewProducer(cfg ProducerConfig, logger *log.Entry) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}

	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// Идемпотентный producer требует одного запроса в полёте.
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	sp, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(sp, logger), nil
}

func newProducer(sp sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{producer: sp, logger: logger, now: time.Now}
}

// Send отправляет готовое сообщение и ждёт подтверждения брокера.
func (p *Producer) Send(msg *sarama.ProducerMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = p.now()
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", msg.Topic).Error("failed to send message to kafka")
		return fmt.Errorf("send message to %s: %w", msg.Topic, err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     msg.Topic,
		"partition": partition,
		"offset":    offset,
	}).Debug("message sent to kafka")
	return nil
}

// PublishJSON сериализует value и отправляет его с ключом key.
func (p *Producer) PublishJSON(topic, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal kafka message: %w", err)
	}
	return p.Send(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
	})
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
