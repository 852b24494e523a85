package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Пустой список брокеров возвращает nil, nil: события остаются в outbox.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	brokers := cfg.kafkaBrokerList()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:  brokers,
		ClientID: "storefront",
	}, logger.WithField("component", "kafka-producer"))
	if err != nil {
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers возвращает publisher событий за circuit breaker и DLQ
// поверх producer. Без producer оба nil.
func outboxPublishers(producer *kafka.Producer, cfg Config, logger *log.Entry) (events, dlq domain.OutboxPublisher) {
	if producer == nil {
		return nil, nil
	}
	dlqTopic := cfg.KafkaDLQTopic
	if dlqTopic == "" {
		dlqTopic = kafka.TopicDeadLetterQueue
	}
	events = outbox.NewBreakerPublisher(
		kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		cfg.OutboxBreakerFailures,
		cfg.OutboxBreakerReset,
		logger.WithField("component", "outbox-breaker"),
	)
	return events, kafka.NewOutboxPublisher(producer, dlqTopic)
}

// closeKafka закрывает producer, если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
