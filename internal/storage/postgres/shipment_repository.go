package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const shipmentColumns = `id, order_id, carrier, tracking_number, status, created_at, updated_at`

type shipmentRepository struct {
	store *Store
}

// NewShipmentRepository создаёт PostgreSQL-хранилище доставок.
func NewShipmentRepository(store *Store) domain.ShipmentRepository {
	return &shipmentRepository{store: store}
}

func scanShipment(row interface{ Scan(dest ...any) error }) (domain.Shipment, error) {
	var (
		s      domain.Shipment
		status string
	)
	err := row.Scan(&s.ID, &s.OrderID, &s.Carrier, &s.TrackingNumber, &status, &s.CreatedAt, &s.UpdatedAt)
	s.Status = domain.ShipmentStatus(status)
	return s, err
}

func (r *shipmentRepository) CreateShipment(ctx context.Context, s domain.Shipment) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.conn(ctx).ExecContext(opCtx, `
		INSERT INTO shipments (`+shipmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, s.ID, s.OrderID, s.Carrier, s.TrackingNumber, string(s.Status), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("shipment for order %s: %w", s.OrderID, domain.ErrConflict)
		case isForeignKeyViolation(err):
			return domain.NewNotFound("order", s.OrderID)
		}
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (r *shipmentRepository) GetShipment(ctx context.Context, id string) (domain.Shipment, error) {
	return r.getOne(ctx, `id = $1`, id, domain.NewNotFound("shipment", id))
}

func (r *shipmentRepository) GetShipmentByOrder(ctx context.Context, orderID string) (domain.Shipment, error) {
	return r.getOne(ctx, `order_id = $1`, orderID, domain.NewNotFoundOf("shipment", "order", orderID))
}

func (r *shipmentRepository) getOne(ctx context.Context, where, arg string, notFound *domain.NotFoundError) (domain.Shipment, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	s, err := scanShipment(r.store.conn(ctx).QueryRowContext(opCtx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shipment{}, notFound
		}
		return domain.Shipment{}, fmt.Errorf("select shipment: %w", err)
	}
	return s, nil
}

func (r *shipmentRepository) UpdateShipmentStatus(ctx context.Context, id string, from, to domain.ShipmentStatus) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(opCtx, `
		UPDATE shipments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update shipment status: %w", err)
	}
	if err := expectOneRow(res, domain.ErrConflict); err != nil {
		if _, getErr := r.GetShipment(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("shipment %s status changed concurrently: %w", id, err)
	}
	return nil
}

var _ domain.ShipmentRepository = (*shipmentRepository)(nil)
