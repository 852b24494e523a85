package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     domain.OutboxStatus
	attemptCnt int
	seq        uint64
	createdAt  time.Time
	updatedAt  time.Time
}

// OutboxRepository — in-memory хранилище transactional outbox.
// Enqueue внутри транзакции хранилища откатывается вместе с заказом.
type OutboxRepository struct {
	tx      *txManager
	mu      sync.RWMutex
	records map[string]*outboxRecord
	seq     uint64
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *OutboxRepository {
	return newOutboxRepository(newTxManager())
}

func newOutboxRepository(tx *txManager) *OutboxRepository {
	return &OutboxRepository{tx: tx, records: make(map[string]*outboxRecord)}
}

// Enqueue сохраняет событие со статусом `pending`.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	err := r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		now := time.Now().UTC()
		msg.CreatedAt = now
		r.seq++
		r.records[msg.ID] = &outboxRecord{
			msg:       msg,
			seq:       r.seq,
			status:    domain.OutboxStatusPending,
			createdAt: now,
			updatedAt: now,
		}
		l.onRollback(func() {
			r.mu.Lock()
			delete(r.records, msg.ID)
			r.mu.Unlock()
		})
		return nil
	})
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// PullPending возвращает до limit самых старых сообщений со статусом `pending`.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	pending := r.pendingRecords()
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самой старой pending-записи.
func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	pending := r.pendingRecords()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, domain.OutboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, domain.OutboxStatusFailed)
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	records := r.pendingRecords()
	msgs := make([]domain.OutboxMessage, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, rec.msg)
	}
	return msgs
}

func (r *OutboxRepository) mark(id string, status domain.OutboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	return nil
}

func (r *OutboxRepository) pendingRecords() []outboxRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]outboxRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.status == domain.OutboxStatusPending {
			result = append(result, *rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].seq < result[j].seq
	})
	return result
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
