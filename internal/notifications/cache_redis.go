package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores unread counts under notifications:unread:<user>.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cannot connect to Redis at %s: %w", addr, err)
	}
	return NewRedisCacheFromClient(rdb, ttl), nil
}

func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, userID string) (int, bool, error) {
	count, err := r.client.Get(ctx, unreadKey(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, count int) error {
	return r.client.Set(ctx, unreadKey(userID), count, r.ttl).Err()
}

func (r *RedisCache) Invalidate(ctx context.Context, userID string) error {
	return r.client.Del(ctx, unreadKey(userID)).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func unreadKey(userID string) string {
	return fmt.Sprintf("notifications:unread:%s", userID)
}
