package domain

import "time"

// Типы событий заказа, публикуемые через outbox.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
)

// AggregateOrder — тип агрегата для событий заказа.
const AggregateOrder = "order"

// OutboxStatus описывает состояние сообщения в outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	// OutboxStatusFailed: попытки исчерпаны, сообщение ушло в DLQ.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	// CreatedAt заполняет хранилище при Enqueue.
	CreatedAt time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OrderEventPayload — тело событий заказа, сериализуется в JSON.
type OrderEventPayload struct {
	OrderID        string    `json:"order_id"`
	CustomerID     string    `json:"customer_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	TotalMinor     int64     `json:"total_minor"`
	Currency       string    `json:"currency"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
