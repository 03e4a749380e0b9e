package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/cache"
	"github.com/qs3c/guild_server/internal/pkg/logging"
	"github.com/qs3c/guild_server/internal/pkg/metrics"
)

// 单次缓存操作的超时
const cacheOpTimeout = 500 * time.Millisecond

// CommentCache 评论读缓存。缓存只是优化，任何缓存错误都只记录不上抛
type CommentCache struct {
	store cache.Store
	cfg   config.CacheConfig
	log   zerolog.Logger
}

func NewCommentCache(store cache.Store, cfg config.CacheConfig) *CommentCache {
	return &CommentCache{
		store: store,
		cfg:   cfg,
		log:   logging.WithComponent("comment_cache"),
	}
}

func (c *CommentCache) enabled() bool {
	return c != nil && c.store != nil
}

// ttlOf 按操作类型选择 TTL
func (c *CommentCache) ttlOf(op cache.Op) time.Duration {
	switch op {
	case cache.OpStats:
		return c.cfg.StatsTTL()
	case cache.OpItem:
		return c.cfg.ItemTTL()
	default:
		return c.cfg.ListTTL()
	}
}

func (c *CommentCache) get(ctx context.Context, key cache.Key, dest interface{}) bool {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	op := string(key.Op)
	raw, ok, err := c.store.Get(ctx, key.String())
	if err != nil {
		metrics.RecordCache(op, metrics.CacheError)
		c.log.Warn().Err(err).Str("key", key.String()).Msg("cache get failed")
		return false
	}
	if !ok {
		metrics.RecordCache(op, metrics.CacheMiss)
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		metrics.RecordCache(op, metrics.CacheError)
		c.log.Warn().Err(err).Str("key", key.String()).Msg("cache entry corrupted")
		return false
	}
	metrics.RecordCache(op, metrics.CacheHit)
	return true
}

func (c *CommentCache) set(ctx context.Context, key cache.Key, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key.String()).Msg("cache encode failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()

	if err := c.store.Set(ctx, key.String(), string(data), c.ttlOf(key.Op)); err != nil {
		metrics.RecordCache(string(key.Op), metrics.CacheError)
		c.log.Warn().Err(err).Str("key", key.String()).Msg("cache set failed")
	}
}

// remember 读穿透：命中直接返回，未命中时调用 load 并回填。load 的错误不缓存
func remember[T any](ctx context.Context, c *CommentCache, key cache.Key, load func(ctx context.Context) (T, error)) (T, error) {
	if !c.enabled() {
		return load(ctx)
	}

	var cached T
	if c.get(ctx, key, &cached) {
		return cached, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	c.set(ctx, key, value)
	return value, nil
}

// deletePattern 按模式批量删除，返回删除数量
func (c *CommentCache) deletePattern(ctx context.Context, scope, pattern string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*cacheOpTimeout)
	defer cancel()

	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.store.Delete(ctx, keys...)
	if err != nil {
		return 0, err
	}
	metrics.RecordInvalidation(scope, int(n))
	return n, nil
}

func (c *CommentCache) invalidate(ctx context.Context, scope, pattern string) {
	if !c.enabled() {
		return
	}
	if _, err := c.deletePattern(ctx, scope, pattern); err != nil {
		c.log.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation failed")
	}
}

// InvalidateContent 某内容下所有分页的列表、树形与统计
func (c *CommentCache) InvalidateContent(ctx context.Context, contentType model.ContentType, contentID string) {
	c.invalidate(ctx, "content", cache.ContentPattern(string(contentType), contentID))
}

// InvalidateComment 单条评论
func (c *CommentCache) InvalidateComment(ctx context.Context, commentID int64) {
	if !c.enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()

	n, err := c.store.Delete(ctx, cache.ItemKey(commentID))
	if err != nil {
		c.log.Warn().Err(err).Int64("comment_id", commentID).Msg("cache invalidation failed")
		return
	}
	metrics.RecordInvalidation("item", int(n))
}

// InvalidateReplies 某评论所有分页的回复列表
func (c *CommentCache) InvalidateReplies(ctx context.Context, parentID int64) {
	c.invalidate(ctx, "replies", cache.RepliesPattern(parentID))
}

// InvalidateUser 某用户的“我的评论”
func (c *CommentCache) InvalidateUser(ctx context.Context, userID int64) {
	c.invalidate(ctx, "user", cache.UserPattern(userID))
}

// InvalidateAll 清空全部评论缓存，开销与 key 总数成正比
func (c *CommentCache) InvalidateAll(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	n, err := c.deletePattern(ctx, "all", cache.AllPattern())
	if err != nil {
		c.log.Error().Err(err).Msg("flush comment cache failed")
		return 0, err
	}
	c.log.Info().Int64("keys", n).Msg("comment cache flushed")
	return n, nil
}
