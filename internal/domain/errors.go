package domain

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок. Конкретные ошибки ниже оборачивают их, поэтому
// вызывающий код проверяет вид через errors.Is, а детали через errors.As.
var (
	// ErrNotFound — сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument — запрос некорректен по форме или значению.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientStock — запрошено больше, чем есть на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPartialWrite — заголовок заказа сохранён, а позиции нет.
	ErrPartialWrite = errors.New("partial write")
	// ErrInvalidTransition — переход статуса запрещён автоматом состояний.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict — нарушение уникальности или конкурентное изменение.
	ErrConflict = errors.New("conflict")
	// ErrUnauthenticated — нет или неверные учётные данные.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden — субъект не владеет ресурсом.
	ErrForbidden = errors.New("forbidden")
)

var (
	// ErrCustomerRequired — не указан идентификатор клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// ErrCurrencyRequired — не указан код валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// ErrDetailsRequired — в заказе нет ни одной позиции.
	ErrDetailsRequired = errors.New("order must contain at least one detail")
	// ErrAmountNegative — отрицательная сумма заказа.
	ErrAmountNegative = errors.New("total_minor must be non-negative")
	ErrDetailQtyInvalid   = errors.New("detail quantity must be greater than zero")
	ErrDetailPriceInvalid = errors.New("detail unit price must be non-negative")
	// ErrSubtotalMismatch — subtotal позиции не равен quantity * unit price.
	ErrSubtotalMismatch = errors.New("detail subtotal does not match quantity * unit price")
	// ErrAmountMismatch — сумма заказа не равна сумме subtotal позиций.
	ErrAmountMismatch = errors.New("order total does not match details sum")
	// ErrOrderIDRequired — не указан идентификатор заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrProductIDRequired — не указан идентификатор товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// ErrOrderConflict — статус заказа изменился параллельно (compare-and-set не прошёл).
	ErrOrderConflict = fmt.Errorf("order status changed concurrently: %w", ErrConflict)
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

var (
	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// NotFoundError указывает, какая сущность не найдена.
// Of задаёт владельца, если поиск шёл не по собственному ID сущности.
type NotFoundError struct {
	Entity string
	Of     string
	ID     string
}

// NewNotFound создаёт ошибку отсутствия сущности.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewNotFoundOf создаёт ошибку для поиска по владельцу, например отгрузки по заказу.
func NewNotFoundOf(entity, of, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, Of: of, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.Of != "" {
		return fmt.Sprintf("%s for %s %q not found", e.Entity, e.Of, e.ID)
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidArgumentError описывает некорректное поле запроса.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

// NewInvalidArgument создаёт ошибку валидации поля.
func NewInvalidArgument(field, reason string) *InvalidArgumentError {
	return &InvalidArgumentError{Field: field, Reason: reason}
}

func (e *InvalidArgumentError) Error() string {
	if e.Field == "" {
		return "invalid argument: " + e.Reason
	}
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// InsufficientStockError содержит товар и количества, на которых не хватило остатка.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// PartialWriteError возвращается, когда заголовок заказа записан, а позиции нет.
// Автоматической компенсации нет: OrderID нужен для ручной очистки.
type PartialWriteError struct {
	OrderID string
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("order %q partially written: %v", e.OrderID, e.Err)
}

func (e *PartialWriteError) Unwrap() []error { return []error{ErrPartialWrite, e.Err} }

// InvalidTransitionError описывает запрещённый переход статуса.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// IsConflict проверяет конфликт уникальности или конкурентного изменения.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
