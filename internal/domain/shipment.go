package domain

import "time"

// ShipmentStatus — статус доставки.
type ShipmentStatus string

const (
	ShipmentStatusPreparing ShipmentStatus = "preparing"
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
)

// Valid проверяет, что статус доставки поддерживается.
func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentStatusPreparing, ShipmentStatusInTransit, ShipmentStatusDelivered:
		return true
	default:
		return false
	}
}

// CanTransitionShipment разрешает только движение вперёд: preparing -> in_transit -> delivered.
func CanTransitionShipment(from, to ShipmentStatus) bool {
	switch from {
	case ShipmentStatusPreparing:
		return to == ShipmentStatusInTransit
	case ShipmentStatusInTransit:
		return to == ShipmentStatusDelivered
	default:
		return false
	}
}

// Shipment — запись отслеживания заказа.
type Shipment struct {
	ID             string
	OrderID        string
	Carrier        string
	TrackingNumber string
	Status         ShipmentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
