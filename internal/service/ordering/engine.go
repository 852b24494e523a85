// Package ordering собирает заказы из запрошенных строк, сохраняет их и
// ведёт автомат статусов. Цены всегда берутся из каталога.
package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/money"
)

// DefaultCurrency используется, если валюта не задана конфигурацией.
const DefaultCurrency = "THB"

// Engine — движок сборки заказов.
type Engine struct {
	catalog   domain.CatalogStore
	customers domain.CustomerDirectory
	orders    domain.OrderRepository

	tx       domain.Transactor
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository

	currency string
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
	now      func() time.Time
	newID    func() string
}

// Option настраивает Engine.
type Option func(*Engine)

// WithTransactor включает атомарную запись заказа.
func WithTransactor(tx domain.Transactor) Option {
	return func(e *Engine) {
		e.tx = tx
	}
}

// WithOutbox включает публикацию событий заказа через transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(e *Engine) {
		e.outbox = outbox
	}
}

// WithTimeline включает запись истории статусов.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(e *Engine) {
		e.timeline = timeline
	}
}

// WithCurrency задаёт валюту новых заказов.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		if c := strings.ToUpper(strings.TrimSpace(currency)); c != "" {
			e.currency = c
		}
	}
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов (для тестов).
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// NewEngine создаёт движок поверх каталога, справочника клиентов и репозитория заказов.
func NewEngine(
	catalog domain.CatalogStore,
	customers domain.CustomerDirectory,
	orders domain.OrderRepository,
	opts ...Option,
) *Engine {
	e := &Engine{
		catalog:   catalog,
		customers: customers,
		orders:    orders,
		currency:  DefaultCurrency,
		logger:    log.WithField("component", "ordering"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AssembleOrder проверяет строки запроса по каталогу и строит согласованный
// заказ в статусе pending. Ничего не сохраняет.
func (e *Engine) AssembleOrder(ctx context.Context, customerID string, lines []domain.RequestedLine) (domain.Order, []domain.OrderDetail, error) {
	start := e.now()
	order, details, err := e.assemble(ctx, customerID, lines)
	e.metrics.RecordAssemblyDuration(e.now().Sub(start))
	if err != nil {
		e.metrics.RecordRejected(rejectReason(err))
		return domain.Order{}, nil, err
	}
	return order, details, nil
}

func (e *Engine) assemble(ctx context.Context, customerID string, lines []domain.RequestedLine) (domain.Order, []domain.OrderDetail, error) {
	if len(lines) == 0 {
		return domain.Order{}, nil, domain.NewInvalidArgument("lines", "at least one line is required")
	}
	for i, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return domain.Order{}, nil, domain.NewInvalidArgument(fmt.Sprintf("lines[%d].product_id", i), "is required")
		}
		if line.Quantity < 1 {
			return domain.Order{}, nil, domain.NewInvalidArgument(fmt.Sprintf("lines[%d].quantity", i), "must be at least 1")
		}
	}

	if _, err := e.customers.GetCustomer(ctx, customerID); err != nil {
		return domain.Order{}, nil, err
	}

	products := make(map[string]domain.Product, len(lines))
	requested := make(map[string]int, len(lines))
	var uniq []string
	for _, line := range lines {
		if _, seen := products[line.ProductID]; !seen {
			p, err := e.catalog.GetProduct(ctx, line.ProductID)
			if err != nil {
				return domain.Order{}, nil, err
			}
			products[line.ProductID] = p
			uniq = append(uniq, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
	}

	for _, id := range uniq {
		available, err := e.catalog.GetAvailableStock(ctx, id)
		if err != nil {
			return domain.Order{}, nil, err
		}
		if requested[id] > available {
			return domain.Order{}, nil, &domain.InsufficientStockError{
				ProductID: id,
				Requested: requested[id],
				Available: available,
			}
		}
	}

	now := e.now().UTC()
	orderID := e.newID()
	details := make([]domain.OrderDetail, 0, len(lines))
	var total int64
	for _, line := range lines {
		price := products[line.ProductID].PriceMinor
		subtotal, err := money.Subtotal(price, line.Quantity)
		if err != nil {
			return domain.Order{}, nil, domain.NewInvalidArgument("lines", err.Error())
		}
		if total+subtotal < total {
			return domain.Order{}, nil, domain.NewInvalidArgument("lines", "order total overflows")
		}
		total += subtotal
		details = append(details, domain.OrderDetail{
			ID:             e.newID(),
			OrderID:        orderID,
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPriceMinor: price,
			SubtotalMinor:  subtotal,
			CreatedAt:      now,
		})
	}
	if total <= 0 {
		return domain.Order{}, nil, domain.NewInvalidArgument("total", "must be greater than zero")
	}

	order := domain.Order{
		ID:         orderID,
		CustomerID: customerID,
		Status:     domain.OrderStatusPending,
		Currency:   e.currency,
		TotalMinor: total,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return order, details, nil
}

// RecordOrder сохраняет заголовок и позиции. С транзакцией запись атомарна;
// без неё сбой на позиции возвращает PartialWriteError без компенсации.
func (e *Engine) RecordOrder(ctx context.Context, order domain.Order, details []domain.OrderDetail) (string, error) {
	if errs := domain.ValidateOrder(order, details); len(errs) > 0 {
		return "", domain.NewInvalidArgument("order", errors.Join(errs...).Error())
	}

	if e.tx == nil {
		return e.record(ctx, order, details)
	}

	var orderID string
	err := e.tx.WithinTx(ctx, func(txCtx context.Context) error {
		id, err := e.insert(txCtx, order, details)
		orderID = id
		return err
	})
	if err != nil {
		return "", err
	}
	return orderID, nil
}

// record — запись без транзакции.
func (e *Engine) record(ctx context.Context, order domain.Order, details []domain.OrderDetail) (string, error) {
	orderID, err := e.orders.InsertOrder(ctx, order)
	if err != nil {
		return "", err
	}
	for _, d := range details {
		if err := e.orders.InsertOrderDetail(ctx, orderID, d); err != nil {
			e.metrics.RecordPartialWrite()
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id":  orderID,
				"detail_id": d.ID,
			}).Error("order header stored without all details")
			return orderID, &domain.PartialWriteError{OrderID: orderID, Err: err}
		}
	}
	return orderID, nil
}

func (e *Engine) insert(ctx context.Context, order domain.Order, details []domain.OrderDetail) (string, error) {
	orderID, err := e.orders.InsertOrder(ctx, order)
	if err != nil {
		return "", err
	}
	for _, d := range details {
		if err := e.orders.InsertOrderDetail(ctx, orderID, d); err != nil {
			return "", err
		}
	}
	return orderID, nil
}

// PlaceOrder собирает заказ, сохраняет его и списывает остатки. С транзакцией
// всё происходит атомарно, включая событие order.placed.
func (e *Engine) PlaceOrder(ctx context.Context, customerID string, lines []domain.RequestedLine) (domain.Order, []domain.OrderDetail, error) {
	order, details, err := e.AssembleOrder(ctx, customerID, lines)
	if err != nil {
		return domain.Order{}, nil, err
	}

	if e.tx != nil {
		err = e.tx.WithinTx(ctx, func(txCtx context.Context) error {
			orderID, err := e.RecordOrder(txCtx, order, details)
			if err != nil {
				return err
			}
			order.ID = orderID
			if err := e.reserve(txCtx, details); err != nil {
				return err
			}
			return e.emit(txCtx, order, "", domain.EventOrderPlaced, domain.TimelineOrderPlaced, "")
		})
	} else {
		err = e.placeWithoutTx(ctx, &order, details)
	}
	if err != nil {
		e.metrics.RecordRejected(rejectReason(err))
		return domain.Order{}, nil, err
	}

	for i := range details {
		details[i].OrderID = order.ID
	}
	order.Details = details
	e.metrics.RecordPlaced(order.TotalMinor)
	e.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"total_minor": order.TotalMinor,
		"lines":       len(details),
	}).Info("order placed")
	return order, details, nil
}

// placeWithoutTx сначала списывает остатки, затем пишет заказ. Списанное
// возвращается, если заказ не удалось записать целиком.
func (e *Engine) placeWithoutTx(ctx context.Context, order *domain.Order, details []domain.OrderDetail) error {
	for i, d := range details {
		if err := e.catalog.ReserveStock(ctx, d.ProductID, d.Quantity); err != nil {
			e.release(ctx, details[:i])
			return err
		}
	}
	orderID, err := e.RecordOrder(ctx, *order, details)
	if err != nil {
		e.release(ctx, details)
		return err
	}
	order.ID = orderID
	if err := e.emit(ctx, *order, "", domain.EventOrderPlaced, domain.TimelineOrderPlaced, ""); err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("order placed without event")
	}
	return nil
}

func (e *Engine) reserve(ctx context.Context, details []domain.OrderDetail) error {
	for _, d := range details {
		if err := e.catalog.ReserveStock(ctx, d.ProductID, d.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) release(ctx context.Context, details []domain.OrderDetail) {
	for _, d := range details {
		if err := e.catalog.ReleaseStock(ctx, d.ProductID, d.Quantity); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"product_id": d.ProductID,
				"quantity":   d.Quantity,
			}).Warn("release stock failed")
		}
	}
}

// TransitionStatus переводит заказ в статус to через compare-and-set.
// Отмена возвращает остатки на склад в той же транзакции.
func (e *Engine) TransitionStatus(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (domain.Order, error) {
	return e.transition(ctx, orderID, to, reason, nil)
}

// Cancel отменяет заказ по просьбе клиента. Разрешено только из pending:
// оплаченный заказ отменяется возвратом платежа.
func (e *Engine) Cancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	return e.transition(ctx, orderID, domain.OrderStatusCancelled, reason, func(order domain.Order) error {
		if order.Status != domain.OrderStatusPending {
			return &domain.InvalidTransitionError{From: string(order.Status), To: string(domain.OrderStatusCancelled)}
		}
		return nil
	})
}

func (e *Engine) transition(ctx context.Context, orderID string, to domain.OrderStatus, reason string, guard func(domain.Order) error) (domain.Order, error) {
	var (
		updated domain.Order
		from    domain.OrderStatus
	)
	err := e.inTx(ctx, func(txCtx context.Context) error {
		order, err := e.orders.GetOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if guard != nil {
			if err := guard(order); err != nil {
				return err
			}
		}
		if err := domain.ValidateTransition(from, to); err != nil {
			return err
		}
		if err := e.orders.UpdateStatus(txCtx, orderID, from, to); err != nil {
			return err
		}
		if to == domain.OrderStatusCancelled {
			if err := e.releaseStrict(txCtx, order.Details); err != nil {
				return err
			}
		}

		order.Status = to
		order.Version++
		order.UpdatedAt = e.now().UTC()
		if err := e.emit(txCtx, order, from, domain.EventOrderStatusChanged, domain.TimelineStatusType(to), reason); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	e.metrics.RecordTransition(string(from), string(to))

	e.logger.WithFields(log.Fields{
		"order_id": orderID,
		"from":     from,
		"status":   to,
		"reason":   reason,
	}).Info("order status changed")
	return updated, nil
}

func (e *Engine) releaseStrict(ctx context.Context, details []domain.OrderDetail) error {
	if e.tx == nil {
		e.release(ctx, details)
		return nil
	}
	for _, d := range details {
		if err := e.catalog.ReleaseStock(ctx, d.ProductID, d.Quantity); err != nil {
			return fmt.Errorf("release stock for %s: %w", d.ProductID, err)
		}
	}
	return nil
}

// GetOrder возвращает заказ вместе с позициями.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return e.orders.GetOrder(ctx, orderID)
}

// ListCustomerOrders возвращает заказы клиента, новые первыми.
func (e *Engine) ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	return e.orders.GetOrdersByCustomer(ctx, customerID, limit)
}

// DeleteOrder удаляет заказ в статусе pending или cancelled. Остатки
// pending-заказа возвращаются на склад.
func (e *Engine) DeleteOrder(ctx context.Context, orderID string) error {
	return e.inTx(ctx, func(txCtx context.Context) error {
		order, err := e.orders.GetOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case domain.OrderStatusPending:
			if err := e.releaseStrict(txCtx, order.Details); err != nil {
				return err
			}
		case domain.OrderStatusCancelled:
		default:
			return &domain.InvalidTransitionError{From: string(order.Status), To: "deleted"}
		}
		if err := e.orders.DeleteOrder(txCtx, orderID); err != nil {
			return err
		}
		return e.enqueue(txCtx, order, order.Status, domain.EventOrderDeleted, "")
	})
}

// Timeline возвращает историю статусов заказа.
func (e *Engine) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := e.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	if e.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return e.timeline.List(ctx, orderID)
}

func (e *Engine) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.tx == nil {
		return fn(ctx)
	}
	return e.tx.WithinTx(ctx, fn)
}

// emit пишет событие в outbox и запись в историю. Внутри транзакции ошибка
// откатывает изменение статуса; без транзакции только логируется.
func (e *Engine) emit(ctx context.Context, order domain.Order, from domain.OrderStatus, eventType, timelineType, reason string) error {
	if err := e.enqueue(ctx, order, from, eventType, reason); err != nil {
		return err
	}
	if e.timeline == nil {
		return nil
	}
	err := e.timeline.Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     timelineType,
		Status:   order.Status,
		Reason:   reason,
		Occurred: order.UpdatedAt,
	})
	if err != nil {
		if e.tx != nil {
			return fmt.Errorf("append timeline event: %w", err)
		}
		e.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
		return nil
	}
	e.metrics.RecordTimelineEvent()
	return nil
}

func (e *Engine) enqueue(ctx context.Context, order domain.Order, from domain.OrderStatus, eventType, reason string) error {
	if e.outbox == nil {
		return nil
	}
	payload, err := json.Marshal(domain.OrderEventPayload{
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		Status:         string(order.Status),
		PreviousStatus: string(from),
		TotalMinor:     order.TotalMinor,
		Currency:       order.Currency,
		Reason:         reason,
		OccurredAt:     e.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	_, err = e.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		if e.tx != nil {
			return fmt.Errorf("enqueue %s event: %w", eventType, err)
		}
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return metrics.RejectInvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return metrics.RejectNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.RejectInsufficientStock
	default:
		return metrics.RejectInternal
	}
}
