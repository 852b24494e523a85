package review

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	store := memory.NewStore()
	now := time.Now().UTC()
	if err := store.Products.CreateProduct(context.Background(), domain.Product{ID: "p1", Name: "P1", PriceMinor: 100, Stock: 1, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	svc := NewService(store.Reviews, store.Products, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestService_Add(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		rating    int
		comment   string
		want      error
	}{
		{name: "ok", productID: "p1", rating: 5, comment: "  great  "},
		{name: "rating too low", productID: "p1", rating: 0, want: domain.ErrInvalidArgument},
		{name: "rating too high", productID: "p1", rating: 6, want: domain.ErrInvalidArgument},
		{name: "unknown product", productID: "ghost", rating: 3, want: domain.ErrNotFound},
		{name: "long comment", productID: "p1", rating: 3, comment: strings.Repeat("x", maxCommentLength+1), want: domain.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)
			r, err := svc.Add(context.Background(), "c1", tt.productID, tt.rating, tt.comment)
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			if r.ID == "" || r.Comment != "great" {
				t.Fatalf("unexpected review: %+v", r)
			}
		})
	}
}

func TestService_ListByProduct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, rating := range []int{4, 2} {
		if _, err := svc.Add(ctx, "c1", "p1", rating, ""); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	list, err := svc.ListByProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Rating != 4 || list[1].Rating != 2 {
		t.Fatalf("unexpected reviews: %+v", list)
	}

	if _, err := svc.ListByProduct(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
