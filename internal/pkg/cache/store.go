// Package cache 评论缓存存储：Redis 为主，不可用时退化为进程内 LRU
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/guild_server/internal/pkg/logging"
)

// Store 缓存存储接口
type Store interface {
	// Get 读取缓存，未命中时 ok 为 false
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Keys 按 glob 模式查找 key
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Delete 删除 key，返回实际删除数量
	Delete(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// DefaultMemorySize 内存缓存默认容量
const DefaultMemorySize = 10000

// NewStoreWithFallback Redis 可达时返回 RedisStore，否则返回 MemoryStore
func NewStoreWithFallback(ctx context.Context, client *redis.Client, memorySize int) Store {
	log := logging.WithComponent("cache")

	if client != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := client.Ping(pingCtx).Err()
		if err == nil {
			log.Info().Msg("using redis cache store")
			return NewRedisStore(client)
		}
		log.Warn().Err(err).Msg("redis unavailable, falling back to memory cache store")
	}

	if memorySize <= 0 {
		memorySize = DefaultMemorySize
	}
	return NewMemoryStore(memorySize)
}
