package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func enqueue(t *testing.T, repo *memory.OutboxRepository, orderID, payload string) domain.OutboxMessage {
	t.Helper()

	msg, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   orderID,
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(payload),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return msg
}

func TestWorker_ProcessOnce_PublishesInOrder(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	first := enqueue(t, repo, "o1", `{"order_id":"o1"}`)
	second := enqueue(t, repo, "o2", `{"order_id":"o2"}`)
	publisher := &recordingPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMetrics(metrics.NewOutboxMetrics(prometheus.NewRegistry())))

	if sent := worker.ProcessOnce(context.Background()); sent != 2 {
		t.Fatalf("expected 2 sent, got %d", sent)
	}
	got := publisher.ids()
	if len(got) != 2 || got[0] != first.ID || got[1] != second.ID {
		t.Fatalf("unexpected publish order: %v", got)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}
}

func TestWorker_ProcessOnce_RespectsBatchSize(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	for _, id := range []string{"o1", "o2", "o3"} {
		enqueue(t, repo, id, `{}`)
	}
	worker := NewWorker(repo, &recordingPublisher{}, WithBatchSize(2), WithRetryBaseDelay(0))

	if sent := worker.ProcessOnce(context.Background()); sent != 2 {
		t.Fatalf("expected 2 sent, got %d", sent)
	}
	if pending := repo.AllPending(); len(pending) != 1 {
		t.Fatalf("expected 1 pending left, got %d", len(pending))
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "o1", `{}`)
	publisher := &recordingPublisher{errs: []error{errors.New("attempt 1"), errors.New("attempt 2")}}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))

	if sent := worker.ProcessOnce(context.Background()); sent != 1 {
		t.Fatalf("expected 1 sent, got %d", sent)
	}
	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish calls, got %d", got)
	}
}

func TestWorker_ProcessOnce_DeadLetterAfterRetries(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	msg := enqueue(t, repo, "o1", `{"order_id":"o1"}`)
	publisher := &recordingPublisher{err: errors.New("broker down")}
	dlq := &recordingPublisher{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	worker := NewWorker(repo, publisher, WithDLQPublisher(dlq), WithRetryBaseDelay(0), WithMaxAttempts(2))
	worker.cfg.now = func() time.Time { return now }

	if sent := worker.ProcessOnce(context.Background()); sent != 0 {
		t.Fatalf("expected nothing sent, got %d", sent)
	}
	if got := publisher.calls(); got != 2 {
		t.Fatalf("expected 2 publish calls, got %d", got)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("failed message must leave pending state, got %d", len(pending))
	}

	dead := dlq.messages()
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dead))
	}
	var letter DeadLetter
	if err := json.Unmarshal(dead[0].Payload, &letter); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if letter.OutboxID != msg.ID || letter.AggregateID != "o1" || !letter.FailedAt.Equal(now) {
		t.Fatalf("unexpected dead letter: %+v", letter)
	}
	if string(letter.Payload) != `{"order_id":"o1"}` {
		t.Fatalf("original payload must be embedded, got %s", letter.Payload)
	}
	if letter.PublishError == "" {
		t.Fatal("publish error must be recorded")
	}
}

func TestWorker_ProcessOnce_CancelledContextKeepsPending(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "o1", `{}`)
	publisher := &recordingPublisher{err: errors.New("broker down")}
	worker := NewWorker(repo, publisher, WithRetryBaseDelay(time.Hour), WithMaxAttempts(3))

	ctx, cancel := context.WithCancel(context.Background())
	publisher.onCall = cancel

	worker.ProcessOnce(ctx)
	if pending := repo.AllPending(); len(pending) != 1 {
		t.Fatalf("message must stay pending after cancel, got %d", len(pending))
	}
}

func TestWorker_Backoff(t *testing.T) {
	t.Parallel()

	worker := NewWorker(nil, nil, WithRetryBaseDelay(time.Second))
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: maxRetryDelay},
		{attempt: 60, want: maxRetryDelay},
	}
	for _, tt := range tests {
		if got := worker.backoff(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(memory.NewOutboxRepository(), &recordingPublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	errs   []error
	onCall func()
	sent   []domain.OutboxMessage
	count  int
}

func (p *recordingPublisher) Publish(msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	if p.onCall != nil {
		p.onCall()
	}
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return err
	}
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingPublisher) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *recordingPublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *recordingPublisher) messages() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.sent...)
}

func (p *recordingPublisher) ids() []string {
	var ids []string
	for _, m := range p.messages() {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestWorker_Run_WithoutPublisherReportsBacklog(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueue(t, repo, "o1", `{}`)
	enqueue(t, repo, "o2", `{}`)

	registry := prometheus.NewRegistry()
	worker := NewWorker(repo, nil,
		WithPollInterval(5*time.Millisecond),
		WithMetrics(metrics.NewOutboxMetrics(registry)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var pending float64 = -1
	for _, mf := range families {
		if mf.GetName() == "storefront_outbox_pending_records" {
			pending = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	if pending != 2 {
		t.Fatalf("expected pending gauge 2, got %v", pending)
	}

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 {
		t.Fatalf("messages must stay pending, got %d", stats.PendingCount)
	}
}
