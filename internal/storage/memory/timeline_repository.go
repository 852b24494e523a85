package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// timelineRepositoryInMemory хранит события в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	tx     *txManager
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

func newTimelineRepository(tx *txManager) *timelineRepositoryInMemory {
	return &timelineRepositoryInMemory{tx: tx, events: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет событие; внутри транзакции откатывается вместе с ней.
func (r *timelineRepositoryInMemory) Append(ctx context.Context, event domain.TimelineEvent) error {
	if event.OrderID == "" {
		return domain.ErrOrderIDRequired
	}
	return r.tx.write(ctx, func(l *txLog) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		prev := append([]domain.TimelineEvent(nil), r.events[event.OrderID]...)
		events := append(r.events[event.OrderID], event)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Occurred.Before(events[j].Occurred)
		})
		r.events[event.OrderID] = events
		l.onRollback(func() {
			r.mu.Lock()
			r.events[event.OrderID] = prev
			r.mu.Unlock()
		})
		return nil
	})
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
