package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepositoryInMemory struct {
	tx    *txManager
	mu    sync.RWMutex
	lines map[string]map[string]domain.CartLine // customerID -> lineID -> line
}

// NewCartRepository возвращает in-memory хранилище корзин.
func NewCartRepository() domain.CartRepository {
	return newCartRepository(newTxManager())
}

func newCartRepository(tx *txManager) *cartRepositoryInMemory {
	return &cartRepositoryInMemory{tx: tx, lines: make(map[string]map[string]domain.CartLine)}
}

func (r *cartRepositoryInMemory) ListLines(_ context.Context, customerID string) ([]domain.CartLine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.CartLine, 0, len(r.lines[customerID]))
	for _, line := range r.lines[customerID] {
		result = append(result, line)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// AddLine увеличивает количество существующей строки товара или создаёт новую.
func (r *cartRepositoryInMemory) AddLine(ctx context.Context, customerID, productID string, qty int) (domain.CartLine, error) {
	var out domain.CartLine
	err := r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		now := time.Now().UTC()
		cart := r.lines[customerID]
		if cart == nil {
			cart = make(map[string]domain.CartLine)
			r.lines[customerID] = cart
		}
		for id, line := range cart {
			if line.ProductID != productID {
				continue
			}
			prev := line
			line.Quantity += qty
			line.UpdatedAt = now
			cart[id] = line
			out = line
			l.onRollback(func() { r.put(prev) })
			return nil
		}

		line := domain.CartLine{
			ID:         uuid.NewString(),
			CustomerID: customerID,
			ProductID:  productID,
			Quantity:   qty,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		cart[line.ID] = line
		out = line
		l.onRollback(func() { r.drop(customerID, line.ID) })
		return nil
	})
	return out, err
}

func (r *cartRepositoryInMemory) UpdateLine(ctx context.Context, customerID, lineID string, qty int) (domain.CartLine, error) {
	var out domain.CartLine
	err := r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		line, ok := r.lines[customerID][lineID]
		if !ok {
			return domain.NewNotFound("cart line", lineID)
		}
		prev := line
		line.Quantity = qty
		line.UpdatedAt = time.Now().UTC()
		r.lines[customerID][lineID] = line
		out = line
		l.onRollback(func() { r.put(prev) })
		return nil
	})
	return out, err
}

func (r *cartRepositoryInMemory) RemoveLine(ctx context.Context, customerID, lineID string) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		line, ok := r.lines[customerID][lineID]
		if !ok {
			return domain.NewNotFound("cart line", lineID)
		}
		delete(r.lines[customerID], lineID)
		l.onRollback(func() { r.put(line) })
		return nil
	})
}

func (r *cartRepositoryInMemory) Clear(ctx context.Context, customerID string) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		prev := r.lines[customerID]
		delete(r.lines, customerID)
		l.onRollback(func() {
			r.mu.Lock()
			r.lines[customerID] = prev
			r.mu.Unlock()
		})
		return nil
	})
}

func (r *cartRepositoryInMemory) put(line domain.CartLine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lines[line.CustomerID] == nil {
		r.lines[line.CustomerID] = make(map[string]domain.CartLine)
	}
	r.lines[line.CustomerID][line.ID] = line
}

func (r *cartRepositoryInMemory) drop(customerID, lineID string) {
	r.mu.Lock()
	delete(r.lines[customerID], lineID)
	r.mu.Unlock()
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
