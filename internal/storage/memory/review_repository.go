package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type reviewRepositoryInMemory struct {
	tx        *txManager
	mu        sync.RWMutex
	byProduct map[string][]domain.Review
}

// NewReviewRepository возвращает in-memory хранилище отзывов.
func NewReviewRepository() domain.ReviewRepository {
	return newReviewRepository(newTxManager())
}

func newReviewRepository(tx *txManager) *reviewRepositoryInMemory {
	return &reviewRepositoryInMemory{tx: tx, byProduct: make(map[string][]domain.Review)}
}

func (r *reviewRepositoryInMemory) CreateReview(ctx context.Context, review domain.Review) error {
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		prevLen := len(r.byProduct[review.ProductID])
		r.byProduct[review.ProductID] = append(r.byProduct[review.ProductID], review)
		l.onRollback(func() {
			r.mu.Lock()
			r.byProduct[review.ProductID] = r.byProduct[review.ProductID][:prevLen]
			r.mu.Unlock()
		})
		return nil
	})
}

// ListReviewsByProduct возвращает отзывы в порядке добавления.
func (r *reviewRepositoryInMemory) ListReviewsByProduct(_ context.Context, productID string) ([]domain.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.Review{}, r.byProduct[productID]...), nil
}

var _ domain.ReviewRepository = (*reviewRepositoryInMemory)(nil)
