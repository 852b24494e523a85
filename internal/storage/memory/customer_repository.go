package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type customerRepositoryInMemory struct {
	tx      *txManager
	mu      sync.RWMutex
	items   map[string]domain.Customer
	byEmail map[string]string
}

// NewCustomerRepository возвращает in-memory справочник клиентов.
func NewCustomerRepository() domain.CustomerRepository {
	return newCustomerRepository(newTxManager())
}

func newCustomerRepository(tx *txManager) *customerRepositoryInMemory {
	return &customerRepositoryInMemory{
		tx:      tx,
		items:   make(map[string]domain.Customer),
		byEmail: make(map[string]string),
	}
}

// CreateCustomer сохраняет клиента. Повтор email даёт ErrConflict.
func (r *customerRepositoryInMemory) CreateCustomer(ctx context.Context, c domain.Customer) error {
	email := strings.ToLower(c.Email)
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if _, exists := r.byEmail[email]; exists {
			return fmt.Errorf("customer email %s: %w", email, domain.ErrConflict)
		}
		if _, exists := r.items[c.ID]; exists {
			return fmt.Errorf("customer %s: %w", c.ID, domain.ErrConflict)
		}
		c.Email = email
		r.items[c.ID] = c
		r.byEmail[email] = c.ID
		l.onRollback(func() {
			r.mu.Lock()
			delete(r.items, c.ID)
			delete(r.byEmail, email)
			r.mu.Unlock()
		})
		return nil
	})
}

func (r *customerRepositoryInMemory) GetCustomer(_ context.Context, id string) (domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[id]
	if !ok {
		return domain.Customer{}, domain.NewNotFound("customer", id)
	}
	return c, nil
}

func (r *customerRepositoryInMemory) GetCustomerByEmail(_ context.Context, email string) (domain.Customer, error) {
	email = strings.ToLower(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return domain.Customer{}, domain.NewNotFound("customer", email)
	}
	return r.items[id], nil
}

var _ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)
