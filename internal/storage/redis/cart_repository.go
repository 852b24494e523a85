// Package redis хранит корзины в Redis: по хешу на клиента, строка корзины
// идентифицируется идентификатором товара.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const opTimeout = 2 * time.Second

// addLineScript атомарно увеличивает количество и проставляет метки времени.
// Возвращает {quantity, created_at_unix_nano}.
var addLineScript = goredis.NewScript(`
local qty = redis.call('HINCRBY', KEYS[1], ARGV[1], tonumber(ARGV[2]))
redis.call('HSETNX', KEYS[2], ARGV[1] .. ':created', ARGV[3])
redis.call('HSET', KEYS[2], ARGV[1] .. ':updated', ARGV[3])
if tonumber(ARGV[4]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
	redis.call('PEXPIRE', KEYS[2], ARGV[4])
end
return {qty, redis.call('HGET', KEYS[2], ARGV[1] .. ':created')}
`)

// updateLineScript меняет количество только существующей строки.
var updateLineScript = goredis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
	return false
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1] .. ':updated', ARGV[3])
return redis.call('HGET', KEYS[2], ARGV[1] .. ':created')
`)

// CartRepository — реализация domain.CartRepository поверх Redis.
type CartRepository struct {
	client goredis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

var _ domain.CartRepository = (*CartRepository)(nil)

// NewCartRepository создаёт репозиторий. ttl > 0 продлевает жизнь корзины при каждом добавлении.
func NewCartRepository(client goredis.Cmdable, ttl time.Duration) *CartRepository {
	return &CartRepository{client: client, ttl: ttl, now: time.Now}
}

func itemsKey(customerID string) string { return "cart:" + customerID + ":items" }
func metaKey(customerID string) string  { return "cart:" + customerID + ":meta" }

func (r *CartRepository) ListLines(ctx context.Context, customerID string) ([]domain.CartLine, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := r.client.Pipeline()
	itemsCmd := pipe.HGetAll(opCtx, itemsKey(customerID))
	metaCmd := pipe.HGetAll(opCtx, metaKey(customerID))
	if _, err := pipe.Exec(opCtx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("read cart: %w", err)
	}

	meta := metaCmd.Val()
	lines := make([]domain.CartLine, 0, len(itemsCmd.Val()))
	for productID, rawQty := range itemsCmd.Val() {
		qty, err := strconv.Atoi(rawQty)
		if err != nil {
			return nil, fmt.Errorf("parse cart quantity for %s: %w", productID, err)
		}
		lines = append(lines, domain.CartLine{
			ID:         productID,
			CustomerID: customerID,
			ProductID:  productID,
			Quantity:   qty,
			CreatedAt:  parseNanos(meta[productID+":created"]),
			UpdatedAt:  parseNanos(meta[productID+":updated"]),
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].CreatedAt.Equal(lines[j].CreatedAt) {
			return lines[i].CreatedAt.Before(lines[j].CreatedAt)
		}
		return lines[i].ProductID < lines[j].ProductID
	})
	return lines, nil
}

func (r *CartRepository) AddLine(ctx context.Context, customerID, productID string, qty int) (domain.CartLine, error) {
	if qty <= 0 {
		return domain.CartLine{}, domain.NewInvalidArgument("quantity", "must be greater than zero")
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.now().UTC()
	res, err := addLineScript.Run(opCtx, r.client,
		[]string{itemsKey(customerID), metaKey(customerID)},
		productID, qty, now.UnixNano(), r.ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return domain.CartLine{}, fmt.Errorf("add cart line: %w", err)
	}
	if len(res) != 2 {
		return domain.CartLine{}, fmt.Errorf("add cart line: unexpected script result %v", res)
	}

	total, ok := res[0].(int64)
	if !ok {
		return domain.CartLine{}, fmt.Errorf("add cart line: unexpected quantity %v", res[0])
	}
	created, _ := res[1].(string)

	return domain.CartLine{
		ID:         productID,
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   int(total),
		CreatedAt:  parseNanos(created),
		UpdatedAt:  now,
	}, nil
}

func (r *CartRepository) UpdateLine(ctx context.Context, customerID, lineID string, qty int) (domain.CartLine, error) {
	if qty <= 0 {
		return domain.CartLine{}, domain.NewInvalidArgument("quantity", "must be greater than zero")
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.now().UTC()
	created, err := updateLineScript.Run(opCtx, r.client,
		[]string{itemsKey(customerID), metaKey(customerID)},
		lineID, qty, now.UnixNano(),
	).Text()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.CartLine{}, domain.NewNotFound("cart line", lineID)
		}
		return domain.CartLine{}, fmt.Errorf("update cart line: %w", err)
	}

	return domain.CartLine{
		ID:         lineID,
		CustomerID: customerID,
		ProductID:  lineID,
		Quantity:   qty,
		CreatedAt:  parseNanos(created),
		UpdatedAt:  now,
	}, nil
}

func (r *CartRepository) RemoveLine(ctx context.Context, customerID, lineID string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	delCmd := pipe.HDel(opCtx, itemsKey(customerID), lineID)
	pipe.HDel(opCtx, metaKey(customerID), lineID+":created", lineID+":updated")
	if _, err := pipe.Exec(opCtx); err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	if delCmd.Val() == 0 {
		return domain.NewNotFound("cart line", lineID)
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, customerID string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Del(opCtx, itemsKey(customerID), metaKey(customerID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func parseNanos(raw string) time.Time {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
