package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type customerRepository struct {
	store *Store
}

// NewCustomerRepository создаёт PostgreSQL-справочник клиентов.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepository{store: store}
}

func (r *customerRepository) CreateCustomer(ctx context.Context, c domain.Customer) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.conn(ctx).ExecContext(opCtx, `
		INSERT INTO customers (id, full_name, email, password_hash, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, c.ID, c.FullName, strings.ToLower(c.Email), c.PasswordHash, c.Phone, c.Address, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("customer email %s: %w", c.Email, domain.ErrConflict)
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (r *customerRepository) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *customerRepository) GetCustomerByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return r.getOne(ctx, `WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *customerRepository) getOne(ctx context.Context, where, arg string) (domain.Customer, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var c domain.Customer
	err := r.store.conn(ctx).QueryRowContext(opCtx, `
		SELECT id, full_name, email, password_hash, phone, address, created_at
		FROM customers `+where, arg).Scan(
		&c.ID, &c.FullName, &c.Email, &c.PasswordHash, &c.Phone, &c.Address, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.NewNotFound("customer", arg)
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return c, nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
