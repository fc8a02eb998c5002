package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Heinvv10/gaztime-sub001/internal/cart"
)

const cartKeyPrefix = "cart:"

// RedisCartSessions lets any API replica serve a till's cart. Every read
// slides the expiry forward.
type RedisCartSessions struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCartSessions(client *redis.Client, ttl time.Duration) *RedisCartSessions {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisCartSessions{client: client, ttl: ttl}
}

func (r *RedisCartSessions) Load(ctx context.Context, sessionID string) (*cart.Cart, error) {
	val, err := r.client.GetEx(ctx, cartKeyPrefix+sessionID, r.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.New(), nil
	}
	if err != nil {
		return nil, err
	}

	c := cart.New()
	if err := json.Unmarshal(val, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *RedisCartSessions) Save(ctx context.Context, sessionID string, c *cart.Cart) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, cartKeyPrefix+sessionID, payload, r.ttl).Err()
}

func (r *RedisCartSessions) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, cartKeyPrefix+sessionID).Err()
}
