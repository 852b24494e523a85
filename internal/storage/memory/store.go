package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Store объединяет in-memory репозитории с общим менеджером транзакций.
// Используется для локальной разработки и тестов.
type Store struct {
	tx *txManager

	Products    domain.ProductRepository
	Customers   domain.CustomerRepository
	Orders      domain.OrderRepository
	Carts       domain.CartRepository
	Payments    domain.PaymentRepository
	Shipments   domain.ShipmentRepository
	Reviews     domain.ReviewRepository
	Timeline    domain.TimelineRepository
	Outbox      *OutboxRepository
	Idempotency domain.IdempotencyRepository
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	tx := newTxManager()
	return &Store{
		tx:          tx,
		Products:    newProductRepository(tx),
		Customers:   newCustomerRepository(tx),
		Orders:      newOrderRepository(tx),
		Carts:       newCartRepository(tx),
		Payments:    newPaymentRepository(tx),
		Shipments:   newShipmentRepository(tx),
		Reviews:     newReviewRepository(tx),
		Timeline:    newTimelineRepository(tx),
		Outbox:      newOutboxRepository(tx),
		Idempotency: NewIdempotencyRepository(),
	}
}

// WithinTx выполняет fn атомарно для всех репозиториев хранилища.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.WithinTx(ctx, fn)
}

var _ domain.Transactor = (*Store)(nil)
