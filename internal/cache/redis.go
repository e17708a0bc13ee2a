package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_fulfill/internal/domain"
)

func NewRedisCartCache(client *redis.Client) *RedisCartCache {
	return &RedisCartCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCartCache) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(cartID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}

	return &cart, nil
}

func (r *RedisCartCache) Set(ctx context.Context, cartID string, cart *domain.Cart) error {
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	if err := r.client.Set(ctx, cartKey(cartID), jsonCart, r.jitteredTTL()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCartCache) Delete(ctx context.Context, cartID string) error {
	if err := r.client.Del(ctx, cartKey(cartID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCartCache) jitteredTTL() time.Duration {
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return r.baseTTL + jitter
}

func cartKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

func NewRedisOrderCache(client *redis.Client) *RedisOrderCache {
	return &RedisOrderCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisOrderCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisOrderCache) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.get(ctx, orderKey(orderID))
}

func (r *RedisOrderCache) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.get(ctx, orderNumberKey(orderNumber))
}

func (r *RedisOrderCache) get(ctx context.Context, key string) (*domain.Order, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var order domain.Order
	if err2 := json.Unmarshal(data, &order); err2 != nil {
		return nil, fmt.Errorf("unmarshal order failed: %w", err2)
	}
	return &order, nil
}

func (r *RedisOrderCache) Set(ctx context.Context, order *domain.Order) error {
	jsonOrder, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	pipe := r.client.Pipeline()
	pipe.Set(ctx, orderKey(order.ID.String()), jsonOrder, ttl)
	pipe.Set(ctx, orderNumberKey(order.OrderNumber), jsonOrder, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisOrderCache) Delete(ctx context.Context, orderID, orderNumber string) error {
	if err := r.client.Del(ctx, orderKey(orderID), orderNumberKey(orderNumber)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order:%s", orderID)
}

func orderNumberKey(orderNumber string) string {
	return fmt.Sprintf("order:number:%s", orderNumber)
}
