package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `id, customer_id, status, currency, total_minor, version, created_at, updated_at`

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) InsertOrder(ctx context.Context, order domain.Order) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var id string
	err := r.store.conn(ctx).QueryRowContext(opCtx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`,
		order.ID, order.CustomerID, string(order.Status), order.Currency,
		order.TotalMinor, order.Version, order.CreatedAt, order.UpdatedAt,
	).Scan(&id)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return "", fmt.Errorf("order %s: %w", order.ID, domain.ErrConflict)
		case isForeignKeyViolation(err):
			return "", domain.NewNotFound("customer", order.CustomerID)
		}
		return "", fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

func (r *orderRepository) InsertOrderDetail(ctx context.Context, orderID string, d domain.OrderDetail) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.conn(ctx).ExecContext(opCtx, `
		INSERT INTO order_details (
			id, order_id, product_id, quantity, unit_price_minor, subtotal_minor, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, d.ID, orderID, d.ProductID, d.Quantity, d.UnitPriceMinor, d.SubtotalMinor, d.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("order detail %s: %w", d.ID, domain.ErrConflict)
		case isForeignKeyViolation(err):
			return fmt.Errorf("order detail %s references missing order or product: %w", d.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("insert order detail: %w", err)
	}
	return nil
}

func (r *orderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	q := r.store.conn(ctx)
	order, err := scanOrder(q.QueryRowContext(opCtx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.NewNotFound("order", id)
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if order.Details, err = loadDetails(opCtx, q, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) GetOrdersByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{customerID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	q := r.store.conn(ctx)
	rows, err := q.QueryContext(opCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	// Курсор закрываем до догрузки позиций: внутри транзакции соединение одно.
	_ = rows.Close()

	for i := range orders {
		if orders[i].Details, err = loadDetails(opCtx, q, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// UpdateStatus — compare-and-set по текущему статусу с инкрементом версии.
func (r *orderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	q := r.store.conn(ctx)
	res, err := q.ExecContext(opCtx, `
		UPDATE orders
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(opCtx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return domain.NewNotFound("order", id)
	}
	return domain.ErrOrderConflict
}

// DeleteOrder удаляет заказ; позиции удаляются каскадом.
func (r *orderRepository) DeleteOrder(ctx context.Context, id string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(opCtx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return expectOneRow(res, domain.NewNotFound("order", id))
}

func scanOrder(row interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(
		&order.ID, &order.CustomerID, &status, &order.Currency,
		&order.TotalMinor, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	order.Status = domain.OrderStatus(status)
	return order, err
}

func loadDetails(ctx context.Context, q queryer, orderID string) ([]domain.OrderDetail, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price_minor, subtotal_minor, created_at
		FROM order_details
		WHERE order_id = $1
		ORDER BY seq ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order details: %w", err)
	}
	defer rows.Close()

	details := make([]domain.OrderDetail, 0)
	for rows.Next() {
		var d domain.OrderDetail
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ProductID, &d.Quantity, &d.UnitPriceMinor, &d.SubtotalMinor, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order detail: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order details: %w", err)
	}
	return details, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
