package domain

import "time"

// PaymentStatus описывает состояние платежа.
type PaymentStatus string

const (
	// PaymentStatusPending — платёж создан, подтверждения ещё нет.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted — деньги получены.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed — платёж отклонён.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — деньги возвращены клиенту.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod — способ оплаты.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodWallet         PaymentMethod = "wallet"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunded},
}

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodCashOnDelivery, PaymentMethodWallet:
		return true
	default:
		return false
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransitionPayment проверяет переход статуса платежа.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Payment описывает платёж, связанный с заказом.
type Payment struct {
	ID          string
	OrderID     string
	Method      PaymentMethod
	Status      PaymentStatus
	AmountMinor int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate проверяет корректность полей платежа.
func (p *Payment) Validate() error {
	switch {
	case p.OrderID == "":
		return NewInvalidArgument("order_id", "is required")
	case !p.Method.Valid():
		return NewInvalidArgument("payment_method", "unsupported method "+string(p.Method))
	case p.AmountMinor <= 0:
		return NewInvalidArgument("amount", "must be greater than zero")
	}
	return nil
}
