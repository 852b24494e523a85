package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const cartColumns = `id, customer_id, product_id, quantity, created_at, updated_at`

type cartRepository struct {
	store *Store
}

// NewCartRepository создаёт PostgreSQL-хранилище корзин.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{store: store}
}

func scanCartLine(row interface{ Scan(dest ...any) error }) (domain.CartLine, error) {
	var l domain.CartLine
	err := row.Scan(&l.ID, &l.CustomerID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (r *cartRepository) ListLines(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(opCtx, `
		SELECT `+cartColumns+`
		FROM cart_items
		WHERE customer_id = $1
		ORDER BY created_at ASC, id ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartLine, 0)
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return lines, nil
}

// AddLine — upsert по (customer_id, product_id) с увеличением количества.
func (r *cartRepository) AddLine(ctx context.Context, customerID, productID string, qty int) (domain.CartLine, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	line, err := scanCartLine(r.store.conn(ctx).QueryRowContext(opCtx, `
		INSERT INTO cart_items (`+cartColumns+`)
		VALUES ($1,$2,$3,$4,$5,$5)
		ON CONFLICT (customer_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		RETURNING `+cartColumns,
		uuid.NewString(), customerID, productID, qty, now,
	))
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.CartLine{}, fmt.Errorf("cart references missing customer or product: %w", domain.ErrNotFound)
		}
		return domain.CartLine{}, fmt.Errorf("upsert cart item: %w", err)
	}
	return line, nil
}

func (r *cartRepository) UpdateLine(ctx context.Context, customerID, lineID string, qty int) (domain.CartLine, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	line, err := scanCartLine(r.store.conn(ctx).QueryRowContext(opCtx, `
		UPDATE cart_items
		SET quantity = $3, updated_at = NOW()
		WHERE id = $1 AND customer_id = $2
		RETURNING `+cartColumns,
		lineID, customerID, qty,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartLine{}, domain.NewNotFound("cart line", lineID)
		}
		return domain.CartLine{}, fmt.Errorf("update cart item: %w", err)
	}
	return line, nil
}

func (r *cartRepository) RemoveLine(ctx context.Context, customerID, lineID string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(opCtx,
		`DELETE FROM cart_items WHERE id = $1 AND customer_id = $2`, lineID, customerID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return expectOneRow(res, domain.NewNotFound("cart line", lineID))
}

func (r *cartRepository) Clear(ctx context.Context, customerID string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.store.conn(ctx).ExecContext(opCtx, `DELETE FROM cart_items WHERE customer_id = $1`, customerID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
