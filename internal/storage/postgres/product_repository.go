package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const productColumns = `id, name, description, price_minor, stock, category, image_url, created_at, updated_at`

type productRepository struct {
	store *Store
}

// NewProductRepository создаёт PostgreSQL-реализацию каталога.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{store: store}
}

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceMinor, &p.Stock, &p.Category, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *productRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanProduct(r.store.conn(ctx).QueryRowContext(opCtx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.NewNotFound("product", id)
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *productRepository) GetAvailableStock(ctx context.Context, id string) (int, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var stock int
	err := r.store.conn(ctx).QueryRowContext(opCtx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.NewNotFound("product", id)
		}
		return 0, fmt.Errorf("select product stock: %w", err)
	}
	return stock, nil
}

// ReserveStock — условное списание: UPDATE проходит, только если stock >= qty.
func (r *productRepository) ReserveStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return domain.NewInvalidArgument("quantity", "must be greater than zero")
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(opCtx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, id, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	available, err := r.GetAvailableStock(ctx, id)
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{ProductID: id, Requested: qty, Available: available}
}

func (r *productRepository) ReleaseStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return domain.NewInvalidArgument("quantity", "must be greater than zero")
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(opCtx, `
		UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1
	`, id, qty)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return expectOneRow(res, domain.NewNotFound("product", id))
}

func (r *productRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.store.conn(ctx).QueryContext(opCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (r *productRepository) CreateProduct(ctx context.Context, p domain.Product) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.conn(ctx).ExecContext(opCtx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, p.ID, p.Name, p.Description, p.PriceMinor, p.Stock, p.Category, p.ImageURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("product %s: %w", p.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) UpdateProduct(ctx context.Context, p domain.Product) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(opCtx, `
		UPDATE products
		SET name = $2, description = $3, price_minor = $4, stock = $5,
		    category = $6, image_url = $7, updated_at = $8
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.PriceMinor, p.Stock, p.Category, p.ImageURL, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return expectOneRow(res, domain.NewNotFound("product", p.ID))
}

// DeleteProduct удаляет товар. Товар, на который ссылаются заказы, удалить нельзя.
func (r *productRepository) DeleteProduct(ctx context.Context, id string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(opCtx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("product %s is referenced by orders: %w", id, domain.ErrConflict)
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return expectOneRow(res, domain.NewNotFound("product", id))
}

var _ domain.ProductRepository = (*productRepository)(nil)
