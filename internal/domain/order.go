package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан и ожидает оплаты.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — оплата подтверждена.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped — заказ передан перевозчику.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ получен клиентом. Терминальный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён. Терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions — разрешённые переходы автомата состояний заказа.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusDelivered},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition проверяет переход from -> to. Переход в тот же статус запрещён.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition возвращает InvalidTransitionError для запрещённого перехода.
func ValidateTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: string(from), To: string(to)}
	}
	return nil
}

// RequestedLine — строка запроса на заказ. Цены от клиента не принимаются.
type RequestedLine struct {
	ProductID string
	Quantity  int
}

// OrderDetail — позиция заказа с ценой, зафиксированной на момент оформления.
type OrderDetail struct {
	ID             string
	OrderID        string
	ProductID      string
	Quantity       int
	UnitPriceMinor int64
	SubtotalMinor  int64
	CreatedAt      time.Time
}

// Order агрегирует заголовок заказа и его позиции.
type Order struct {
	ID         string
	CustomerID string
	Status     OrderStatus
	Currency   string
	TotalMinor int64
	Details    []OrderDetail
	// Version увеличивается при каждом изменении статуса.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	return ValidateOrder(*o, o.Details)
}

// ValidateOrder проверяет заголовок вместе с переданными позициями:
// total == сумма subtotal, subtotal == quantity * unit price, позиций не меньше одной.
func ValidateOrder(order Order, details []OrderDetail) []error {
	var errs []error

	if order.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if order.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(details) == 0 {
		errs = append(errs, ErrDetailsRequired)
	}
	if order.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	var calc int64
	for _, d := range details {
		if d.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if d.Quantity <= 0 {
			errs = append(errs, ErrDetailQtyInvalid)
		}
		if d.UnitPriceMinor < 0 {
			errs = append(errs, ErrDetailPriceInvalid)
		}
		if int64(d.Quantity)*d.UnitPriceMinor != d.SubtotalMinor {
			errs = append(errs, ErrSubtotalMismatch)
		}
		calc += d.SubtotalMinor
	}
	if calc != order.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
