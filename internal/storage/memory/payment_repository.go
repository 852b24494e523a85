package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type paymentRepositoryInMemory struct {
	tx    *txManager
	mu    sync.RWMutex
	items map[string]domain.Payment
}

// NewPaymentRepository возвращает in-memory хранилище платежей.
func NewPaymentRepository() domain.PaymentRepository {
	return newPaymentRepository(newTxManager())
}

func newPaymentRepository(tx *txManager) *paymentRepositoryInMemory {
	return &paymentRepositoryInMemory{tx: tx, items: make(map[string]domain.Payment)}
}

func (r *paymentRepositoryInMemory) CreatePayment(ctx context.Context, p domain.Payment) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if _, exists := r.items[p.ID]; exists {
			return fmt.Errorf("payment %s: %w", p.ID, domain.ErrConflict)
		}
		r.items[p.ID] = p
		l.onRollback(func() {
			r.mu.Lock()
			delete(r.items, p.ID)
			r.mu.Unlock()
		})
		return nil
	})
}

func (r *paymentRepositoryInMemory) GetPayment(_ context.Context, id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return domain.Payment{}, domain.NewNotFound("payment", id)
	}
	return p, nil
}

func (r *paymentRepositoryInMemory) ListPaymentsByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Payment, 0)
	for _, p := range r.items {
		if p.OrderID == orderID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *paymentRepositoryInMemory) UpdatePaymentStatus(ctx context.Context, id string, from, to domain.PaymentStatus) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		p, ok := r.items[id]
		if !ok {
			return domain.NewNotFound("payment", id)
		}
		if p.Status != from {
			return fmt.Errorf("payment %s status changed concurrently: %w", id, domain.ErrConflict)
		}
		prev := p
		p.Status = to
		p.UpdatedAt = time.Now().UTC()
		r.items[id] = p
		l.onRollback(func() {
			r.mu.Lock()
			r.items[id] = prev
			r.mu.Unlock()
		})
		return nil
	})
}

func (r *paymentRepositoryInMemory) DeletePayment(ctx context.Context, id string) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		prev, ok := r.items[id]
		if !ok {
			return domain.NewNotFound("payment", id)
		}
		delete(r.items, id)
		l.onRollback(func() {
			r.mu.Lock()
			r.items[id] = prev
			r.mu.Unlock()
		})
		return nil
	})
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
