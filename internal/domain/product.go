package domain

import (
	"strings"
	"time"
)

// Product — товар каталога. Цена каталога является единственным источником цены заказа.
type Product struct {
	ID          string
	Name        string
	Description string
	PriceMinor  int64
	Stock       int
	Category    string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductFilter ограничивает выборку каталога.
type ProductFilter struct {
	Category string
	Limit    int
	Offset   int
}

// Validate проверяет поля товара перед записью.
func (p *Product) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return NewInvalidArgument("name", "is required")
	case p.PriceMinor <= 0:
		return NewInvalidArgument("price", "must be greater than zero")
	case p.Stock < 0:
		return NewInvalidArgument("stock", "must be non-negative")
	}
	return nil
}
