package kafka

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisAttemptCounter 用 Redis 计数失败次数，计数 24 小时后过期。
type RedisAttemptCounter struct {
	Client *redis.Client
}

func (c RedisAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.Client.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (c RedisAttemptCounter) Reset(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}
