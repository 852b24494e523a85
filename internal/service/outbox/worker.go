// Package outbox переносит события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// DeadLetter — тело сообщения, отправляемого в DLQ после исчерпания попыток.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

type config struct {
	logger         *log.Entry
	metrics        *metrics.OutboxMetrics
	dlq            domain.OutboxPublisher
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

// Option настраивает Worker.
type Option func(*config)

func WithLogger(logger *log.Entry) Option {
	return func(c *config) { c.logger = logger }
}

// WithMetrics подключает метрики backlog и публикации.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithDLQPublisher задаёт publisher для событий, которые не удалось опубликовать.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(c *config) { c.dlq = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(c *config) { c.pollInterval = interval }
}

func WithBatchSize(size int) Option {
	return func(c *config) { c.batchSize = size }
}

// WithMaxAttempts задаёт число попыток публикации до перевода в failed.
func WithMaxAttempts(n int) Option {
	return func(c *config) { c.maxAttempts = n }
}

// WithRetryBaseDelay задаёт начальную паузу экспоненциального backoff; 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(c *config) { c.retryBaseDelay = delay }
}

// Worker публикует pending-сообщения из outbox.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       config
}

// NewWorker создаёт воркер. Некорректные значения опций заменяются значениями по умолчанию.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	cfg := config{
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "outbox-worker")
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultBatchSize
	}
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = defaultMaxAttempts
	}
	if cfg.retryBaseDelay < 0 {
		cfg.retryBaseDelay = 0
	}

	return &Worker{repo: repo, publisher: publisher, cfg: cfg}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil {
		w.cfg.logger.Warn("outbox worker is disabled: repo is nil")
		return
	}
	// Без publisher сообщения остаются pending, воркер только обновляет backlog.
	tick := w.ProcessOnce
	if w.publisher == nil {
		w.cfg.logger.Warn("outbox publisher is not configured, reporting backlog only")
		tick = func(ctx context.Context) int {
			w.refreshBacklog(ctx)
			return 0
		}
	}

	ticker := time.NewTicker(w.cfg.pollInterval)
	defer ticker.Stop()

	tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// ProcessOnce публикует один батч и возвращает число отправленных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	w.refreshBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.cfg.batchSize)
	if err != nil {
		w.cfg.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	sent := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		ok, halt := w.deliver(ctx, msg)
		if ok {
			sent++
		}
		if halt {
			break
		}
	}

	if len(batch) > 0 {
		w.refreshBacklog(ctx)
	}
	return sent
}

// deliver публикует сообщение. halt=true останавливает текущий батч:
// контекст отменён или брокер недоступен, сообщения остаются pending.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) (sent, halt bool) {
	logger := w.cfg.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
	})

	err := w.publishWithRetry(ctx, msg)
	if err == nil {
		if markErr := w.repo.MarkSent(ctx, msg.ID); markErr != nil {
			logger.WithError(markErr).Warn("failed to mark outbox message as sent")
		}
		return true, false
	}
	if ctx.Err() != nil {
		// Сообщение остаётся pending и будет отправлено после рестарта.
		return false, true
	}
	if errors.Is(err, ErrCircuitOpen) {
		logger.Debug("outbox publisher circuit is open, batch postponed")
		return false, true
	}

	logger.WithError(err).Error("outbox publish failed after retries")
	w.cfg.metrics.RecordAttempt(metrics.PublishFailed)

	if dlqErr := w.publishDeadLetter(msg, err); dlqErr != nil {
		logger.WithError(dlqErr).Warn("failed to publish to DLQ")
		w.cfg.metrics.RecordAttempt(metrics.PublishDLQFailed)
	}
	if markErr := w.repo.MarkFailed(ctx, msg.ID); markErr != nil {
		logger.WithError(markErr).Warn("failed to mark outbox message as failed")
	}
	return false, false
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.maxAttempts; attempt++ {
		lastErr = w.publisher.Publish(msg)
		if lastErr == nil {
			w.cfg.metrics.RecordAttempt(metrics.PublishSent)
			return nil
		}
		if errors.Is(lastErr, ErrCircuitOpen) {
			return lastErr
		}
		w.cfg.metrics.RecordAttempt(metrics.PublishRetryError)

		if attempt == w.cfg.maxAttempts {
			break
		}
		delay := w.backoff(attempt)
		if delay == 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.cfg.maxAttempts, lastErr)
}

// backoff удваивает базовую паузу на каждую попытку, не превышая maxRetryDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.cfg.retryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	if w.cfg.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.cfg.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.cfg.now().Sub(stats.OldestPendingAt)
	}
	w.cfg.metrics.SetBacklog(stats.PendingCount, age)
}

func (w *Worker) publishDeadLetter(msg domain.OutboxMessage, publishErr error) error {
	if w.cfg.dlq == nil {
		return nil
	}

	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(msg.Payload))
		if err != nil {
			return fmt.Errorf("marshal raw payload: %w", err)
		}
		payload = quoted
	}

	body, err := json.Marshal(DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishError:  publishErr.Error(),
		FailedAt:      w.cfg.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	dead := msg
	dead.Payload = body
	if err := w.cfg.dlq.Publish(dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	w.cfg.metrics.RecordAttempt(metrics.PublishDLQ)
	return nil
}
