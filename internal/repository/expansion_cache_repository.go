// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ExpansionCacheRepository 在 Redis 中缓存 AI 概念扩展结果。
type ExpansionCacheRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type redisExpansionCacheRepository struct {
	redisClient *redis.Client
}

// NewExpansionCacheRepository 创建一个新的 ExpansionCacheRepository 实例。
func NewExpansionCacheRepository(redisClient *redis.Client) ExpansionCacheRepository {
	return &redisExpansionCacheRepository{redisClient: redisClient}
}

// Get 读取缓存，未命中时返回空字符串。
func (r *redisExpansionCacheRepository) Get(ctx context.Context, key string) (string, error) {
	val, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get expansion cache: %w", err)
	}
	return val, nil
}

// Set 写入缓存。
func (r *redisExpansionCacheRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.redisClient.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set expansion cache: %w", err)
	}
	return nil
}
