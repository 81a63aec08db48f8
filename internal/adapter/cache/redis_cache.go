package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
	"github.com/redis/go-redis/v9"
)

var _ port.Cache = (*RedisCache)(nil)

type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(addr string, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCacheWithClient(rdb, ttl)
}

func NewRedisCacheWithClient(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func key(id uint64) string { return "order:" + strconv.FormatUint(id, 10) }

func (c *RedisCache) SetOrder(ctx context.Context, o *domain.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(o.ID), b, c.ttl).Err()
}

func (c *RedisCache) GetOrder(ctx context.Context, id uint64) (*domain.Order, error) {
	b, err := c.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var o domain.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, id uint64) error {
	return c.client.Del(ctx, key(id)).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
