package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type fixture struct {
	store    *memory.Store
	engine   *ordering.Engine
	recorder *payment.Recorder
	order    domain.Order
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now().UTC()
	if err := store.Customers.CreateCustomer(ctx, domain.Customer{ID: "c1", Email: "c1@example.com", CreatedAt: now}); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	if err := store.Products.CreateProduct(ctx, domain.Product{ID: "p1", Name: "P1", PriceMinor: 1000, Stock: 5, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	engine := ordering.NewEngine(store.Products, store.Customers, store.Orders,
		ordering.WithTransactor(store),
		ordering.WithOutbox(store.Outbox),
		ordering.WithTimeline(store.Timeline),
	)
	order, _, err := engine.PlaceOrder(ctx, "c1", []domain.RequestedLine{{ProductID: "p1", Quantity: 2}})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	return fixture{
		store:    store,
		engine:   engine,
		recorder: payment.NewRecorder(store.Payments, engine, store, nil),
		order:    order,
	}
}

func TestRecorder_CreateValidatesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		customerID string
		orderID    string
		method     domain.PaymentMethod
		amount     int64
		want       error
	}{
		{name: "unknown method", customerID: "c1", orderID: f.order.ID, method: "barter", amount: 2000, want: domain.ErrInvalidArgument},
		{name: "unknown order", customerID: "c1", orderID: "missing", method: domain.PaymentMethodCard, amount: 2000, want: domain.ErrNotFound},
		{name: "foreign order", customerID: "c2", orderID: f.order.ID, method: domain.PaymentMethodCard, amount: 2000, want: domain.ErrForbidden},
		{name: "amount mismatch", customerID: "c1", orderID: f.order.ID, method: domain.PaymentMethodCard, amount: 1999, want: domain.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.recorder.Create(ctx, tt.customerID, tt.orderID, tt.method, tt.amount)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRecorder_CompletedPaymentMarksOrderPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.recorder.Create(ctx, "c1", f.order.ID, domain.PaymentMethodCard, f.order.TotalMinor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", p.Status)
	}

	done, err := f.recorder.UpdateStatus(ctx, p.ID, domain.PaymentStatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}

	order, err := f.engine.GetOrder(ctx, f.order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid order, got %s", order.Status)
	}

	if _, err := f.recorder.Create(ctx, "c1", f.order.ID, domain.PaymentMethodCard, f.order.TotalMinor); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("paid order must not accept another payment, got %v", err)
	}
	if err := f.recorder.Delete(ctx, p.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("completed payment must not be deleted, got %v", err)
	}
}

func TestRecorder_RefundCancelsPaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.recorder.Create(ctx, "c1", f.order.ID, domain.PaymentMethodWallet, f.order.TotalMinor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.recorder.UpdateStatus(ctx, p.ID, domain.PaymentStatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.recorder.UpdateStatus(ctx, p.ID, domain.PaymentStatusRefunded); err != nil {
		t.Fatalf("refund: %v", err)
	}

	order, err := f.engine.GetOrder(ctx, f.order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %s", order.Status)
	}
	stock, err := f.store.Products.GetAvailableStock(ctx, "p1")
	if err != nil {
		t.Fatalf("stock: %v", err)
	}
	if stock != 5 {
		t.Fatalf("refund must return stock, got %d", stock)
	}
}

func TestRecorder_InvalidTransitionLeavesState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.recorder.Create(ctx, "c1", f.order.ID, domain.PaymentMethodCard, f.order.TotalMinor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.recorder.UpdateStatus(ctx, p.ID, domain.PaymentStatusRefunded); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := f.recorder.UpdateStatus(ctx, p.ID, "lost"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	got, err := f.recorder.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.PaymentStatusPending {
		t.Fatalf("status must stay pending, got %s", got.Status)
	}
}

func TestRecorder_CompletionRollsBackWhenOrderCannotMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.recorder.Create(ctx, "c1", f.order.ID, domain.PaymentMethodCard, f.order.TotalMinor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.engine.TransitionStatus(ctx, f.order.ID, domain.OrderStatusCancelled, "customer request"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := f.recorder.UpdateStatus(ctx, p.ID, domain.PaymentStatusCompleted); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from cancelled order, got %v", err)
	}
	got, err := f.recorder.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.PaymentStatusPending {
		t.Fatalf("payment status must be rolled back, got %s", got.Status)
	}
}

func TestRecorder_GetByOrderAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.recorder.Create(ctx, "c1", f.order.ID, domain.PaymentMethodBankTransfer, f.order.TotalMinor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	list, err := f.recorder.GetByOrder(ctx, f.order.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("unexpected payments: %+v", list)
	}

	if err := f.recorder.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.recorder.Get(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
