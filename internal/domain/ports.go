package domain

import (
	"context"
	"time"
)

// Transactor выполняет fn в одной транзакции хранилища. Транзакция передаётся
// через ctx: репозитории того же хранилища подхватывают её автоматически.
// Ошибка fn откатывает все записи.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogStore — часть каталога, которую использует сборка заказа.
type CatalogStore interface {
	// GetProduct возвращает товар или NotFoundError.
	GetProduct(ctx context.Context, id string) (Product, error)
	// GetAvailableStock возвращает текущий остаток товара.
	GetAvailableStock(ctx context.Context, id string) (int, error)
	// ReserveStock атомарно уменьшает остаток, только если stock >= qty.
	// Иначе возвращает InsufficientStockError.
	ReserveStock(ctx context.Context, id string, qty int) error
	// ReleaseStock возвращает qty единиц на склад.
	ReleaseStock(ctx context.Context, id string, qty int) error
}

// ProductRepository — полный CRUD каталога.
type ProductRepository interface {
	CatalogStore
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id string) error
}

// CustomerDirectory разрешает идентификаторы клиентов.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id string) (Customer, error)
}

// CustomerRepository хранит зарегистрированных клиентов. Email уникален.
type CustomerRepository interface {
	CustomerDirectory
	CreateCustomer(ctx context.Context, c Customer) error
	GetCustomerByEmail(ctx context.Context, email string) (Customer, error)
}

// OrderRepository хранит заголовки заказов и их позиции.
type OrderRepository interface {
	// InsertOrder сохраняет заголовок без позиций и возвращает его идентификатор.
	InsertOrder(ctx context.Context, order Order) (string, error)
	// InsertOrderDetail сохраняет одну позицию заказа orderID.
	InsertOrderDetail(ctx context.Context, orderID string, detail OrderDetail) error
	// GetOrder возвращает заказ вместе с позициями или NotFoundError.
	GetOrder(ctx context.Context, id string) (Order, error)
	// GetOrdersByCustomer возвращает заказы клиента, новые первыми. При limit <= 0 без ограничения.
	GetOrdersByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// UpdateStatus меняет статус только если текущий равен from, иначе ErrOrderConflict.
	UpdateStatus(ctx context.Context, id string, from, to OrderStatus) error
	// DeleteOrder удаляет заказ вместе с позициями.
	DeleteOrder(ctx context.Context, id string) error
}

// CartRepository хранит корзины клиентов.
type CartRepository interface {
	ListLines(ctx context.Context, customerID string) ([]CartLine, error)
	// AddLine добавляет товар или увеличивает количество существующей строки.
	AddLine(ctx context.Context, customerID, productID string, qty int) (CartLine, error)
	UpdateLine(ctx context.Context, customerID, lineID string, qty int) (CartLine, error)
	RemoveLine(ctx context.Context, customerID, lineID string) error
	Clear(ctx context.Context, customerID string) error
}

// PaymentRepository хранит платежи по заказам.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID string) ([]Payment, error)
	// UpdatePaymentStatus — compare-and-set по текущему статусу.
	UpdatePaymentStatus(ctx context.Context, id string, from, to PaymentStatus) error
	DeletePayment(ctx context.Context, id string) error
}

// ShipmentRepository хранит записи отслеживания. На заказ не больше одной записи.
type ShipmentRepository interface {
	CreateShipment(ctx context.Context, s Shipment) error
	GetShipment(ctx context.Context, id string) (Shipment, error)
	GetShipmentByOrder(ctx context.Context, orderID string) (Shipment, error)
	UpdateShipmentStatus(ctx context.Context, id string, from, to ShipmentStatus) error
}

// ReviewRepository хранит отзывы о товарах.
type ReviewRepository interface {
	CreateReview(ctx context.Context, r Review) error
	ListReviewsByProduct(ctx context.Context, productID string) ([]Review, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Delete снимает ключ после сбоя, который клиент вправе повторить.
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
