package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// idempotencyKeys живёт вне транзакций Store: запись о ключе должна пережить
// откат оформления заказа, иначе повтор не получит 409 на время обработки.
type idempotencyKeys struct {
	mu      sync.RWMutex
	records map[string]domain.IdempotencyRecord
	now     func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyKeys{
		records: make(map[string]domain.IdempotencyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (k *idempotencyKeys) CreateProcessing(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if existing, ok := k.records[key]; ok {
		if existing.RequestHash != requestHash {
			return existing.Clone(), domain.ErrIdempotencyHashMismatch
		}
		return existing.Clone(), domain.ErrIdempotencyKeyAlreadyExists
	}

	now := k.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}
	k.records[key] = domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return k.records[key].Clone(), nil
}

func (k *idempotencyKeys) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	record, ok := k.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record.Clone(), nil
}

func (k *idempotencyKeys) MarkDone(_ context.Context, key string, responseBody []byte, httpStatus int) error {
	return k.update(key, func(r *domain.IdempotencyRecord) {
		r.Status = domain.IdempotencyStatusDone
		r.ResponseBody = append([]byte(nil), responseBody...)
		r.HTTPStatus = httpStatus
	})
}

func (k *idempotencyKeys) MarkFailed(_ context.Context, key string, responseBody []byte, httpStatus int) error {
	return k.update(key, func(r *domain.IdempotencyRecord) {
		r.Status = domain.IdempotencyStatusFailed
		r.ResponseBody = append([]byte(nil), responseBody...)
		r.HTTPStatus = httpStatus
	})
}

// Delete снимает ключ, чтобы запрос с ним можно было повторить.
func (k *idempotencyKeys) Delete(_ context.Context, key string) error {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.records[key]; !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	delete(k.records, key)
	return nil
}

// DeleteExpired удаляет не больше limit просроченных ключей; limit <= 0 снимает ограничение.
func (k *idempotencyKeys) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = k.now()
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	removed := 0
	for key, record := range k.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.Expired(before) {
			delete(k.records, key)
			removed++
		}
	}
	return removed, nil
}

func (k *idempotencyKeys) update(key string, apply func(*domain.IdempotencyRecord)) error {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	record, ok := k.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	apply(&record)
	record.UpdatedAt = k.now()
	k.records[key] = record
	return nil
}

func normalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	return key, nil
}

var _ domain.IdempotencyRepository = (*idempotencyKeys)(nil)
