package cache

import (
	"context"
	"path"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryItem struct {
	Value     string
	ExpiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// MemoryStore 进程内 LRU 存储，条目带过期时间
type MemoryStore struct {
	lru *lru.Cache[string, memoryItem]
	now func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = DefaultMemorySize
	}
	l, _ := lru.New[string, memoryItem](size)
	return &MemoryStore{lru: l, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	item, ok := s.lru.Get(key)
	if !ok {
		return "", false, nil
	}
	if item.expired(s.now()) {
		s.lru.Remove(key)
		return "", false, nil
	}
	return item.Value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	item := memoryItem{Value: value}
	if ttl > 0 {
		item.ExpiresAt = s.now().Add(ttl)
	}
	s.lru.Add(key, item)
	return nil
}

// Keys 按 glob 模式匹配未过期的 key
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	now := s.now()
	var out []string
	for _, key := range s.lru.Keys() {
		item, ok := s.lru.Peek(key)
		if !ok || item.expired(now) {
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, key)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) (int64, error) {
	var n int64
	for _, key := range keys {
		if s.lru.Remove(key) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.lru.Purge()
	return nil
}
