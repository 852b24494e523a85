package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// productRepositoryInMemory — каталог товаров в памяти.
type productRepositoryInMemory struct {
	tx    *txManager
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory каталог.
func NewProductRepository() domain.ProductRepository {
	return newProductRepository(newTxManager())
}

func newProductRepository(tx *txManager) *productRepositoryInMemory {
	return &productRepositoryInMemory{tx: tx, items: make(map[string]domain.Product)}
}

func (r *productRepositoryInMemory) GetProduct(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.NewNotFound("product", id)
	}
	return p, nil
}

func (r *productRepositoryInMemory) GetAvailableStock(ctx context.Context, id string) (int, error) {
	p, err := r.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

// ReserveStock уменьшает остаток, только если его хватает.
func (r *productRepositoryInMemory) ReserveStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return domain.NewInvalidArgument("quantity", "must be greater than zero")
	}
	return r.tx.write(ctx, func(l *txLog) error {
		return r.adjustStock(l, id, -qty)
	})
}

// ReleaseStock возвращает единицы товара на склад.
func (r *productRepositoryInMemory) ReleaseStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return domain.NewInvalidArgument("quantity", "must be greater than zero")
	}
	return r.tx.write(ctx, func(l *txLog) error {
		return r.adjustStock(l, id, qty)
	})
}

func (r *productRepositoryInMemory) adjustStock(l *txLog, id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.NewNotFound("product", id)
	}
	if p.Stock+delta < 0 {
		return &domain.InsufficientStockError{ProductID: id, Requested: -delta, Available: p.Stock}
	}
	prev := p
	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	r.items[id] = p
	l.onRollback(func() { r.restore(prev) })
	return nil
}

func (r *productRepositoryInMemory) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, p := range r.items {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Product{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *productRepositoryInMemory) CreateProduct(ctx context.Context, p domain.Product) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if _, exists := r.items[p.ID]; exists {
			return fmt.Errorf("product %s: %w", p.ID, domain.ErrConflict)
		}
		r.items[p.ID] = p
		l.onRollback(func() { r.remove(p.ID) })
		return nil
	})
}

func (r *productRepositoryInMemory) UpdateProduct(ctx context.Context, p domain.Product) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		prev, ok := r.items[p.ID]
		if !ok {
			return domain.NewNotFound("product", p.ID)
		}
		p.CreatedAt = prev.CreatedAt
		r.items[p.ID] = p
		l.onRollback(func() { r.restore(prev) })
		return nil
	})
}

func (r *productRepositoryInMemory) DeleteProduct(ctx context.Context, id string) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		prev, ok := r.items[id]
		if !ok {
			return domain.NewNotFound("product", id)
		}
		delete(r.items, id)
		l.onRollback(func() { r.restore(prev) })
		return nil
	})
}

func (r *productRepositoryInMemory) restore(p domain.Product) {
	r.mu.Lock()
	r.items[p.ID] = p
	r.mu.Unlock()
}

func (r *productRepositoryInMemory) remove(id string) {
	r.mu.Lock()
	delete(r.items, id)
	r.mu.Unlock()
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
