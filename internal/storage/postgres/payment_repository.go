package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const paymentColumns = `id, order_id, method, status, amount_minor, created_at, updated_at`

type paymentRepository struct {
	store *Store
}

// NewPaymentRepository создаёт PostgreSQL-хранилище платежей.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{store: store}
}

func scanPayment(row interface{ Scan(dest ...any) error }) (domain.Payment, error) {
	var (
		p              domain.Payment
		method, status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &method, &status, &p.AmountMinor, &p.CreatedAt, &p.UpdatedAt)
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	return p, err
}

func (r *paymentRepository) CreatePayment(ctx context.Context, p domain.Payment) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.conn(ctx).ExecContext(opCtx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.OrderID, string(p.Method), string(p.Status), p.AmountMinor, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("payment %s: %w", p.ID, domain.ErrConflict)
		case isForeignKeyViolation(err):
			return domain.NewNotFound("order", p.OrderID)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanPayment(r.store.conn(ctx).QueryRowContext(opCtx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.NewNotFound("payment", id)
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) ListPaymentsByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(opCtx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) UpdatePaymentStatus(ctx context.Context, id string, from, to domain.PaymentStatus) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(opCtx, `
		UPDATE payments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if err := expectOneRow(res, domain.ErrConflict); err != nil {
		if _, getErr := r.GetPayment(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("payment %s status changed concurrently: %w", id, err)
	}
	return nil
}

func (r *paymentRepository) DeletePayment(ctx context.Context, id string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(opCtx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return expectOneRow(res, domain.NewNotFound("payment", id))
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
