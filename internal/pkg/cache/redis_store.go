package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	scanCount   = 100
	deleteBatch = 500
)

// RedisStore 基于 go-redis 的存储。生命周期由调用方管理，Close 不关闭外部注入的 client
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Keys 使用 SCAN 遍历，避免 KEYS 阻塞
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		all    []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, err
		}
		all = append(all, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return all, nil
}

// Delete 分批 DEL
func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	var total int64
	for start := 0; start < len(keys); start += deleteBatch {
		end := start + deleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		n, err := s.client.Del(ctx, keys[start:end]...).Result()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return nil
}
