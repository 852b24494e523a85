// Package review принимает и отдаёт отзывы о товарах.
package review

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const maxCommentLength = 2000

type Service struct {
	reviews domain.ReviewRepository
	catalog domain.CatalogStore
	logger  *log.Entry
	now     func() time.Time
}

func NewService(reviews domain.ReviewRepository, catalog domain.CatalogStore, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "review")
	}
	return &Service{reviews: reviews, catalog: catalog, logger: logger, now: time.Now}
}

// Add сохраняет отзыв клиента. Товар должен существовать, рейтинг от 1 до 5.
func (s *Service) Add(ctx context.Context, customerID, productID string, rating int, comment string) (domain.Review, error) {
	comment = strings.TrimSpace(comment)
	if len(comment) > maxCommentLength {
		return domain.Review{}, domain.NewInvalidArgument("comment", "is too long")
	}

	r := domain.Review{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		ProductID:  productID,
		Rating:     rating,
		Comment:    comment,
		CreatedAt:  s.now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return domain.Review{}, err
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return domain.Review{}, err
	}
	if err := s.reviews.CreateReview(ctx, r); err != nil {
		return domain.Review{}, err
	}

	s.logger.WithFields(log.Fields{
		"review_id":  r.ID,
		"product_id": productID,
		"rating":     rating,
	}).Debug("review added")
	return r, nil
}

// ListByProduct возвращает отзывы товара; для неизвестного товара NotFound.
func (s *Service) ListByProduct(ctx context.Context, productID string) ([]domain.Review, error) {
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.reviews.ListReviewsByProduct(ctx, productID)
}
