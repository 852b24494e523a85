// Package tracking ведёт отгрузки заказов.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderFlow — часть движка заказов, нужная отгрузкам.
type OrderFlow interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	TransitionStatus(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (domain.Order, error)
}

// Tracker создаёт отгрузки и продвигает их статус.
type Tracker struct {
	shipments domain.ShipmentRepository
	orders    OrderFlow
	tx        domain.Transactor
	logger    *log.Entry
	now       func() time.Time
}

// NewTracker создаёт Tracker. tx может быть nil.
func NewTracker(shipments domain.ShipmentRepository, orders OrderFlow, tx domain.Transactor, logger *log.Entry) *Tracker {
	if logger == nil {
		logger = log.WithField("component", "tracking")
	}
	return &Tracker{shipments: shipments, orders: orders, tx: tx, logger: logger, now: time.Now}
}

// Ship заводит отгрузку preparing для оплаченного заказа.
// Заказ переходит в shipped, когда отгрузка уходит в in_transit.
func (t *Tracker) Ship(ctx context.Context, orderID, carrier, trackingNumber string) (domain.Shipment, error) {
	carrier = strings.TrimSpace(carrier)
	trackingNumber = strings.TrimSpace(trackingNumber)
	switch {
	case carrier == "":
		return domain.Shipment{}, domain.NewInvalidArgument("carrier", "is required")
	case trackingNumber == "":
		return domain.Shipment{}, domain.NewInvalidArgument("tracking_number", "is required")
	}

	now := t.now().UTC()
	s := domain.Shipment{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		Status:         domain.ShipmentStatusPreparing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := t.inTx(ctx, func(txCtx context.Context) error {
		if _, err := t.shipments.GetShipmentByOrder(txCtx, orderID); err == nil {
			return fmt.Errorf("order %s already has a shipment: %w", orderID, domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		order, err := t.orders.GetOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPaid {
			return &domain.InvalidTransitionError{From: string(order.Status), To: string(domain.OrderStatusShipped)}
		}
		return t.shipments.CreateShipment(txCtx, s)
	})
	if err != nil {
		return domain.Shipment{}, err
	}

	t.logger.WithFields(log.Fields{
		"shipment_id": s.ID,
		"order_id":    orderID,
		"carrier":     carrier,
	}).Info("shipment created")
	return s, nil
}

// UpdateStatus двигает отгрузку вперёд. in_transit переводит заказ в shipped,
// delivered завершает заказ.
func (t *Tracker) UpdateStatus(ctx context.Context, shipmentID string, to domain.ShipmentStatus) (domain.Shipment, error) {
	if !to.Valid() {
		return domain.Shipment{}, domain.NewInvalidArgument("status", fmt.Sprintf("unknown shipment status %q", to))
	}

	var updated domain.Shipment
	err := t.inTx(ctx, func(txCtx context.Context) error {
		s, err := t.shipments.GetShipment(txCtx, shipmentID)
		if err != nil {
			return err
		}
		if !domain.CanTransitionShipment(s.Status, to) {
			return &domain.InvalidTransitionError{From: string(s.Status), To: string(to)}
		}
		if err := t.shipments.UpdateShipmentStatus(txCtx, shipmentID, s.Status, to); err != nil {
			return err
		}
		switch to {
		case domain.ShipmentStatusInTransit:
			if _, err := t.orders.TransitionStatus(txCtx, s.OrderID, domain.OrderStatusShipped, "shipped via "+s.Carrier); err != nil {
				return err
			}
		case domain.ShipmentStatusDelivered:
			if _, err := t.orders.TransitionStatus(txCtx, s.OrderID, domain.OrderStatusDelivered, "delivered by "+s.Carrier); err != nil {
				return err
			}
		}
		s.Status = to
		s.UpdatedAt = t.now().UTC()
		updated = s
		return nil
	})
	if err != nil {
		return domain.Shipment{}, err
	}
	return updated, nil
}

func (t *Tracker) Get(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	return t.shipments.GetShipment(ctx, shipmentID)
}

// GetByOrder возвращает отгрузку заказа.
func (t *Tracker) GetByOrder(ctx context.Context, orderID string) (domain.Shipment, error) {
	return t.shipments.GetShipmentByOrder(ctx, orderID)
}

func (t *Tracker) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t.tx == nil {
		return fn(ctx)
	}
	return t.tx.WithinTx(ctx, fn)
}
