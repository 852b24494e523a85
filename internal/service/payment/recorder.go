// Package payment привязывает платежи к заказам и переводит заказ в paid.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderFlow — часть движка заказов, нужная платежам.
type OrderFlow interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	TransitionStatus(ctx context.Context, orderID string, to domain.OrderStatus, reason string) (domain.Order, error)
}

// Recorder ведёт платежи по заказам.
type Recorder struct {
	payments domain.PaymentRepository
	orders   OrderFlow
	tx       domain.Transactor
	logger   *log.Entry
	now      func() time.Time
}

// NewRecorder создаёт Recorder. tx может быть nil: тогда запись платежа и
// переход заказа выполняются последовательно.
func NewRecorder(payments domain.PaymentRepository, orders OrderFlow, tx domain.Transactor, logger *log.Entry) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "payment")
	}
	return &Recorder{payments: payments, orders: orders, tx: tx, logger: logger, now: time.Now}
}

// Create регистрирует платёж в статусе pending. Заказ должен принадлежать
// клиенту, ждать оплаты, а сумма совпадать с суммой заказа.
func (r *Recorder) Create(ctx context.Context, customerID, orderID string, method domain.PaymentMethod, amountMinor int64) (domain.Payment, error) {
	if !method.Valid() {
		return domain.Payment{}, domain.NewInvalidArgument("method", fmt.Sprintf("unknown payment method %q", method))
	}

	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Payment{}, err
	}
	if order.CustomerID != customerID {
		return domain.Payment{}, fmt.Errorf("order %s belongs to another customer: %w", orderID, domain.ErrForbidden)
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Payment{}, domain.NewInvalidArgument("order_id", fmt.Sprintf("order is %s, expected pending", order.Status))
	}
	if amountMinor != order.TotalMinor {
		return domain.Payment{}, domain.NewInvalidArgument("amount", "must equal the order total")
	}

	now := r.now().UTC()
	p := domain.Payment{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		Method:      method,
		Status:      domain.PaymentStatusPending,
		AmountMinor: amountMinor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return domain.Payment{}, err
	}
	if err := r.payments.CreatePayment(ctx, p); err != nil {
		return domain.Payment{}, err
	}

	r.logger.WithFields(log.Fields{
		"payment_id": p.ID,
		"order_id":   orderID,
		"method":     method,
	}).Info("payment created")
	return p, nil
}

// UpdateStatus двигает платёж по автомату и синхронизирует статус заказа:
// completed переводит заказ в paid, refunded отменяет оплаченный заказ.
func (r *Recorder) UpdateStatus(ctx context.Context, paymentID string, to domain.PaymentStatus) (domain.Payment, error) {
	if !to.Valid() {
		return domain.Payment{}, domain.NewInvalidArgument("status", fmt.Sprintf("unknown payment status %q", to))
	}

	var updated domain.Payment
	err := r.inTx(ctx, func(txCtx context.Context) error {
		p, err := r.payments.GetPayment(txCtx, paymentID)
		if err != nil {
			return err
		}
		if !domain.CanTransitionPayment(p.Status, to) {
			return &domain.InvalidTransitionError{From: string(p.Status), To: string(to)}
		}
		if err := r.payments.UpdatePaymentStatus(txCtx, paymentID, p.Status, to); err != nil {
			return err
		}

		switch to {
		case domain.PaymentStatusCompleted:
			if _, err := r.orders.TransitionStatus(txCtx, p.OrderID, domain.OrderStatusPaid, "payment "+paymentID+" completed"); err != nil {
				return err
			}
		case domain.PaymentStatusRefunded:
			order, err := r.orders.GetOrder(txCtx, p.OrderID)
			if err != nil {
				return err
			}
			if order.Status == domain.OrderStatusPaid {
				if _, err := r.orders.TransitionStatus(txCtx, p.OrderID, domain.OrderStatusCancelled, "payment "+paymentID+" refunded"); err != nil {
					return err
				}
			}
		}

		p.Status = to
		p.UpdatedAt = r.now().UTC()
		updated = p
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	r.logger.WithFields(log.Fields{
		"payment_id": paymentID,
		"order_id":   updated.OrderID,
		"status":     to,
	}).Info("payment status changed")
	return updated, nil
}

func (r *Recorder) Get(ctx context.Context, paymentID string) (domain.Payment, error) {
	return r.payments.GetPayment(ctx, paymentID)
}

// GetByOrder возвращает платежи заказа.
func (r *Recorder) GetByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	return r.payments.ListPaymentsByOrder(ctx, orderID)
}

// Delete удаляет платёж в статусе pending или failed.
func (r *Recorder) Delete(ctx context.Context, paymentID string) error {
	return r.inTx(ctx, func(txCtx context.Context) error {
		p, err := r.payments.GetPayment(txCtx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentStatusPending && p.Status != domain.PaymentStatusFailed {
			return &domain.InvalidTransitionError{From: string(p.Status), To: "deleted"}
		}
		return r.payments.DeletePayment(txCtx, paymentID)
	})
}

func (r *Recorder) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.tx == nil {
		return fn(ctx)
	}
	return r.tx.WithinTx(ctx, fn)
}
