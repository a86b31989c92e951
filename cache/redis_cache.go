package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"storefront/catalog"

	"github.com/redis/go-redis/v9"
)

// RedisProductCache keeps product detail responses so repeated add-to-cart
// lookups do not hit the store API every time.
type RedisProductCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisProductCache(rdb *redis.Client, ttl time.Duration) *RedisProductCache {
	return &RedisProductCache{rdb: rdb, ttl: ttl}
}

func key(id int64) string {
	return "product:" + strconv.FormatInt(id, 10)
}

// Get reports a miss as (nil, nil).
func (r *RedisProductCache) Get(ctx context.Context, id int64) (*catalog.Product, error) {
	raw, err := r.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var p catalog.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RedisProductCache) Set(ctx context.Context, p *catalog.Product) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, key(p.ID), raw, r.ttl).Err()
}
