package domain

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Review — отзыв покупателя о товаре.
type Review struct {
	ID         string
	CustomerID string
	ProductID  string
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// Validate проверяет рейтинг и ссылки отзыва.
func (r *Review) Validate() error {
	switch {
	case r.CustomerID == "":
		return NewInvalidArgument("customer_id", "is required")
	case r.ProductID == "":
		return NewInvalidArgument("product_id", "is required")
	case r.Rating < MinRating || r.Rating > MaxRating:
		return NewInvalidArgument("rating", "must be between 1 and 5")
	}
	return nil
}
