// Package idempotency удаляет просроченные ключи идемпотентности.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

// ExpiredDeleter — часть репозитория ключей, нужная очистке.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

var _ ExpiredDeleter = (domain.IdempotencyRepository)(nil)

type cleanupConfig struct {
	logger    *log.Entry
	metrics   *metrics.CleanupMetrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*cleanupConfig)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(c *cleanupConfig) { c.logger = logger }
}

func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(c *cleanupConfig) { c.metrics = m }
}

// WithInterval задаёт паузу между циклами очистки.
func WithInterval(interval time.Duration) CleanupOption {
	return func(c *cleanupConfig) { c.interval = interval }
}

// WithBatchSize ограничивает число записей, удаляемых одним запросом.
func WithBatchSize(size int) CleanupOption {
	return func(c *cleanupConfig) { c.batchSize = size }
}

// CleanupWorker периодически удаляет ключи с истёкшим TTL.
type CleanupWorker struct {
	repo ExpiredDeleter
	cfg  cleanupConfig
}

func NewCleanupWorker(repo ExpiredDeleter, opts ...CleanupOption) *CleanupWorker {
	cfg := cleanupConfig{
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "idempotency-cleanup")
	}
	if cfg.interval <= 0 {
		cfg.interval = defaultCleanupInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultCleanupBatchSize
	}
	return &CleanupWorker{repo: repo, cfg: cfg}
}

// Run чистит ключи сразу и затем каждые interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.cfg.logger.Warn("idempotency cleanup is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.cfg.now().UTC())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		w.cfg.metrics.RecordRun(false, deleted)
		w.cfg.logger.WithError(err).Warn("idempotency cleanup failed")
		return
	}

	w.cfg.metrics.RecordRun(true, deleted)
	if deleted > 0 {
		w.cfg.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
}

// DeleteExpired удаляет все ключи с ttl <= before батчами по batchSize.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.cfg.now().UTC()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.repo.DeleteExpired(ctx, before, w.cfg.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		w.cfg.metrics.AddDeleted(n)
		if n < w.cfg.batchSize {
			return total, nil
		}
	}
}
