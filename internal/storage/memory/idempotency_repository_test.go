package memory_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestIdempotencyRepository_CreateProcessing(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)
	key := domain.ScopeIdempotencyKey("customer-1", "checkout-1")

	created, err := repo.CreateProcessing(ctx, key, "hash-a", ttl)
	if err != nil {
		t.Fatalf("create processing: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing || !created.TTLAt.Equal(ttl) {
		t.Fatalf("unexpected record %+v", created)
	}

	tests := []struct {
		name    string
		key     string
		hash    string
		wantErr error
	}{
		{name: "blank key", key: " ", hash: "hash-a", wantErr: domain.ErrIdempotencyKeyRequired},
		{name: "blank hash", key: "other", hash: "", wantErr: domain.ErrIdempotencyRequestHashRequired},
		{name: "same request", key: key, hash: "hash-a", wantErr: domain.ErrIdempotencyKeyAlreadyExists},
		{name: "different request", key: key, hash: "hash-b", wantErr: domain.ErrIdempotencyHashMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := repo.CreateProcessing(ctx, tc.key, tc.hash, ttl); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	// Другой клиент с тем же ключом не конфликтует.
	if _, err := repo.CreateProcessing(ctx, domain.ScopeIdempotencyKey("customer-2", "checkout-1"), "hash-b", ttl); err != nil {
		t.Fatalf("scoped key of another customer: %v", err)
	}
}

func TestIdempotencyRepository_StoresResponses(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	for _, key := range []string{"ok", "rejected", "retry"} {
		if _, err := repo.CreateProcessing(ctx, key, "hash-"+key, ttl); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}

	body := []byte(`{"id":"order-1"}`)
	if err := repo.MarkDone(ctx, "ok", body, http.StatusCreated); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	body[2] = 'X'
	if err := repo.MarkFailed(ctx, "rejected", []byte(`{"status":"error"}`), http.StatusConflict); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	done, err := repo.Get(ctx, "ok")
	if err != nil {
		t.Fatalf("get done: %v", err)
	}
	if !done.Replayable() || done.ReplayStatus() != http.StatusCreated || string(done.ResponseBody) != `{"id":"order-1"}` {
		t.Fatalf("unexpected done record %+v", done)
	}

	failed, err := repo.Get(ctx, "rejected")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if failed.Status != domain.IdempotencyStatusFailed || failed.HTTPStatus != http.StatusConflict {
		t.Fatalf("unexpected failed record %+v", failed)
	}

	if err := repo.Delete(ctx, "retry"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "retry", "hash-new", ttl); err != nil {
		t.Fatalf("key must be reusable after delete: %v", err)
	}
	if err := repo.MarkDone(ctx, "missing", nil, http.StatusOK); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
}

func TestIdempotencyRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for i, ttl := range []time.Time{now.Add(-2 * time.Minute), now.Add(-time.Minute), now.Add(time.Hour)} {
		key := string(rune('a' + i))
		if _, err := repo.CreateProcessing(ctx, key, "hash", ttl); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}

	removed, err := repo.DeleteExpired(ctx, now, 1)
	if err != nil || removed != 1 {
		t.Fatalf("first batch: removed=%d err=%v", removed, err)
	}
	removed, err = repo.DeleteExpired(ctx, now, 0)
	if err != nil || removed != 1 {
		t.Fatalf("second batch: removed=%d err=%v", removed, err)
	}
	if _, err := repo.Get(ctx, "c"); err != nil {
		t.Fatalf("active key must survive: %v", err)
	}
}
