package domain

import "time"

// CartLine — строка корзины. Повторное добавление товара увеличивает Quantity.
type CartLine struct {
	ID         string
	CustomerID string
	ProductID  string
	Quantity   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItemView — строка корзины вместе с названием и текущей ценой товара.
type CartItemView struct {
	CartLine
	ProductName string
	PriceMinor  int64
}
