package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"gudangku/backend/internal/domain"
)

type RedisCatalogCache struct {
	client *redis.Client
}

func NewRedisCatalogCache(addr string, password string, db int) *RedisCatalogCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCatalogCache{client: client}
}

func (c *RedisCatalogCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCatalogCache) Close() error {
	return c.client.Close()
}

func (c *RedisCatalogCache) Get(ctx context.Context, barcode string) (*domain.SKU, bool, error) {
	val, err := c.client.Get(ctx, "barcode:"+barcode).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var sku domain.SKU
	if err := json.Unmarshal([]byte(val), &sku); err != nil {
		return nil, false, err
	}
	return &sku, true, nil
}

func (c *RedisCatalogCache) Set(ctx context.Context, barcode string, sku *domain.SKU, ttl time.Duration) error {
	if sku == nil {
		return nil
	}
	payload, err := json.Marshal(sku)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "barcode:"+barcode, payload, ttl).Err()
}
