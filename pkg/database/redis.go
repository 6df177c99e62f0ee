package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/pkg/log"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。Redis 只承载缓存与重试计数，连不上时继续运行。
func InitRedis(cfg config.RedisConfig) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Warnf("Redis 暂不可用, 扩展缓存将降级: %v", err)
		return
	}
	log.Info("Redis client connected successfully")
}
