package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type shipmentRepositoryInMemory struct {
	tx      *txManager
	mu      sync.RWMutex
	items   map[string]domain.Shipment
	byOrder map[string]string
}

// NewShipmentRepository возвращает in-memory хранилище доставок.
func NewShipmentRepository() domain.ShipmentRepository {
	return newShipmentRepository(newTxManager())
}

func newShipmentRepository(tx *txManager) *shipmentRepositoryInMemory {
	return &shipmentRepositoryInMemory{
		tx:      tx,
		items:   make(map[string]domain.Shipment),
		byOrder: make(map[string]string),
	}
}

// CreateShipment сохраняет доставку. Вторая доставка для заказа даёт ErrConflict.
func (r *shipmentRepositoryInMemory) CreateShipment(ctx context.Context, s domain.Shipment) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if _, exists := r.byOrder[s.OrderID]; exists {
			return fmt.Errorf("shipment for order %s: %w", s.OrderID, domain.ErrConflict)
		}
		r.items[s.ID] = s
		r.byOrder[s.OrderID] = s.ID
		l.onRollback(func() {
			r.mu.Lock()
			delete(r.items, s.ID)
			delete(r.byOrder, s.OrderID)
			r.mu.Unlock()
		})
		return nil
	})
}

func (r *shipmentRepositoryInMemory) GetShipment(_ context.Context, id string) (domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id]
	if !ok {
		return domain.Shipment{}, domain.NewNotFound("shipment", id)
	}
	return s, nil
}

func (r *shipmentRepositoryInMemory) GetShipmentByOrder(_ context.Context, orderID string) (domain.Shipment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return domain.Shipment{}, domain.NewNotFoundOf("shipment", "order", orderID)
	}
	return r.items[id], nil
}

func (r *shipmentRepositoryInMemory) UpdateShipmentStatus(ctx context.Context, id string, from, to domain.ShipmentStatus) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		s, ok := r.items[id]
		if !ok {
			return domain.NewNotFound("shipment", id)
		}
		if s.Status != from {
			return fmt.Errorf("shipment %s status changed concurrently: %w", id, domain.ErrConflict)
		}
		prev := s
		s.Status = to
		s.UpdatedAt = time.Now().UTC()
		r.items[id] = s
		l.onRollback(func() {
			r.mu.Lock()
			r.items[id] = prev
			r.mu.Unlock()
		})
		return nil
	})
}

var _ domain.ShipmentRepository = (*shipmentRepositoryInMemory)(nil)
