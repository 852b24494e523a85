package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type reviewRepository struct {
	store *Store
}

// NewReviewRepository создаёт PostgreSQL-хранилище отзывов.
func NewReviewRepository(store *Store) domain.ReviewRepository {
	return &reviewRepository{store: store}
}

func (r *reviewRepository) CreateReview(ctx context.Context, review domain.Review) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.conn(ctx).ExecContext(opCtx, `
		INSERT INTO reviews (id, customer_id, product_id, rating, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, review.ID, review.CustomerID, review.ProductID, review.Rating, review.Comment, review.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("review references missing customer or product: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *reviewRepository) ListReviewsByProduct(ctx context.Context, productID string) ([]domain.Review, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(opCtx, `
		SELECT id, customer_id, product_id, rating, comment, created_at
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.CustomerID, &rv.ProductID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

var _ domain.ReviewRepository = (*reviewRepository)(nil)
