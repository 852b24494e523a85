package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxRepository_Lifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-2",
		EventType:     domain.EventOrderStatusChanged,
		Payload:       []byte(`{}`),
	}); err != nil {
		t.Fatalf("enqueue second: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	pending, err := repo.PullPending(ctx, 1)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("expected oldest message first, got %+v", pending)
	}

	if err := repo.MarkSent(ctx, first.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	stats, err = repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats after send: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Fatalf("expected 1 pending, got %d", stats.PendingCount)
	}
}

func TestTimelineRepository_AppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	orderA, orderB := uuid.NewString(), uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)
	events := []domain.TimelineEvent{
		{OrderID: orderA, Type: domain.TimelineOrderPlaced, Status: domain.OrderStatusPending, Occurred: base},
		{OrderID: orderA, Type: domain.TimelineStatusType(domain.OrderStatusPaid), Status: domain.OrderStatusPaid, Reason: "payment completed", Occurred: base.Add(time.Second)},
		{OrderID: orderB, Type: domain.TimelineOrderPlaced, Status: domain.OrderStatusPending, Occurred: base},
	}
	for _, ev := range events {
		if err := repo.Append(ctx, ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	list, err := repo.List(ctx, orderA)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Type != domain.TimelineOrderPlaced || list[1].Status != domain.OrderStatusPaid || list[1].Reason != "payment completed" {
		t.Fatalf("unexpected timeline: %+v", list)
	}
}
