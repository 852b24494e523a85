package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
// Заголовки и позиции хранятся раздельно, как строки двух таблиц.
type orderRepositoryInMemory struct {
	tx      *txManager
	mu      sync.RWMutex
	orders  map[string]domain.Order
	details map[string][]domain.OrderDetail
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return newOrderRepository(newTxManager())
}

func newOrderRepository(tx *txManager) *orderRepositoryInMemory {
	return &orderRepositoryInMemory{
		tx:      tx,
		orders:  make(map[string]domain.Order),
		details: make(map[string][]domain.OrderDetail),
	}
}

// InsertOrder сохраняет заголовок заказа, если ID ещё не занят.
func (r *orderRepositoryInMemory) InsertOrder(ctx context.Context, order domain.Order) (string, error) {
	if order.ID == "" {
		return "", domain.ErrOrderIDRequired
	}
	err := r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if _, exists := r.orders[order.ID]; exists {
			return fmt.Errorf("order %s: %w", order.ID, domain.ErrConflict)
		}
		// Позиции пишутся отдельно через InsertOrderDetail.
		order.Details = nil
		r.orders[order.ID] = order
		l.onRollback(func() {
			r.mu.Lock()
			delete(r.orders, order.ID)
			delete(r.details, order.ID)
			r.mu.Unlock()
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return order.ID, nil
}

// InsertOrderDetail добавляет позицию к существующему заказу.
func (r *orderRepositoryInMemory) InsertOrderDetail(ctx context.Context, orderID string, detail domain.OrderDetail) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if _, ok := r.orders[orderID]; !ok {
			return domain.NewNotFound("order", orderID)
		}
		for _, existing := range r.details[orderID] {
			if existing.ID == detail.ID {
				return fmt.Errorf("order detail %s: %w", detail.ID, domain.ErrConflict)
			}
		}
		detail.OrderID = orderID
		prevLen := len(r.details[orderID])
		r.details[orderID] = append(r.details[orderID], detail)
		l.onRollback(func() {
			r.mu.Lock()
			if ds, ok := r.details[orderID]; ok && len(ds) > prevLen {
				r.details[orderID] = ds[:prevLen]
			}
			r.mu.Unlock()
		})
		return nil
	})
}

// GetOrder возвращает заказ вместе с копией позиций.
func (r *orderRepositoryInMemory) GetOrder(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.NewNotFound("order", id)
	}
	order.Details = append([]domain.OrderDetail(nil), r.details[id]...)
	return order, nil
}

// GetOrdersByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) GetOrdersByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for id, order := range r.orders {
		if order.CustomerID != customerID {
			continue
		}
		order.Details = append([]domain.OrderDetail(nil), r.details[id]...)
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// UpdateStatus меняет статус, только если текущий равен from (compare-and-set).
func (r *orderRepositoryInMemory) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		current, ok := r.orders[id]
		if !ok {
			return domain.NewNotFound("order", id)
		}
		if current.Status != from {
			return domain.ErrOrderConflict
		}
		prev := current
		current.Status = to
		current.Version++
		current.UpdatedAt = time.Now().UTC()
		r.orders[id] = current
		l.onRollback(func() {
			r.mu.Lock()
			r.orders[id] = prev
			r.mu.Unlock()
		})
		return nil
	})
}

// DeleteOrder удаляет заголовок вместе с позициями.
func (r *orderRepositoryInMemory) DeleteOrder(ctx context.Context, id string) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		prev, ok := r.orders[id]
		if !ok {
			return domain.NewNotFound("order", id)
		}
		prevDetails := r.details[id]
		delete(r.orders, id)
		delete(r.details, id)
		l.onRollback(func() {
			r.mu.Lock()
			r.orders[id] = prev
			r.details[id] = prevDetails
			r.mu.Unlock()
		})
		return nil
	})
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
