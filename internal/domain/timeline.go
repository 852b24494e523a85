package domain

import "time"

// TimelineOrderPlaced — первая запись истории заказа.
const TimelineOrderPlaced = "order_placed"

// TimelineStatusType возвращает тип записи истории для перехода в статус to.
func TimelineStatusType(to OrderStatus) string {
	return "order_" + string(to)
}

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID string
	Type    string
	// Status фиксирует статус заказа сразу после события.
	Status   OrderStatus
	Reason   string
	Occurred time.Time
}
