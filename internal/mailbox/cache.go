package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taskinity/example-email/internal/model"
)

// DefaultCacheTTL 批次缓存的默认有效期
const DefaultCacheTTL = 5 * time.Minute

// Cache stores fetched batches by fingerprint. Implementations must be
// safe for concurrent use; a Get racing a Set sees either the old or the
// new batch, never a partial one.
type Cache interface {
	Get(ctx context.Context, key string) ([]model.EmailMessage, bool)
	Set(ctx context.Context, key string, msgs []model.EmailMessage)
}

type cacheEntry struct {
	messages []model.EmailMessage
	storedAt time.Time
}

// MemoryCache 进程内缓存
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return NewMemoryCacheWithClock(ttl, time.Now)
}

// NewMemoryCacheWithClock is NewMemoryCache with an injectable clock.
func NewMemoryCacheWithClock(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]model.EmailMessage, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Sub(entry.storedAt) >= c.ttl {
		// 过期：丢弃
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.storedAt.Equal(entry.storedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return cloneMessages(entry.messages), true
}

func (c *MemoryCache) Set(_ context.Context, key string, msgs []model.EmailMessage) {
	entry := cacheEntry{messages: cloneMessages(msgs), storedAt: c.now()}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// RedisCache 基于 Redis 的共享缓存，多个进程可复用同一批次
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		rdb:    rdb,
		ttl:    ttl,
		prefix: "mailflow:batch:",
		logger: logger,
	}
}

// Get 读取失败（Redis 不可用、数据损坏）一律视为未命中
func (c *RedisCache) Get(ctx context.Context, key string) ([]model.EmailMessage, bool) {
	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Redis cache read failed, treating as miss",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return nil, false
	}

	var msgs []model.EmailMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		c.logger.Warn("Corrupt cache entry, treating as miss",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, false
	}
	if msgs == nil {
		msgs = []model.EmailMessage{}
	}
	return msgs, true
}

func (c *RedisCache) Set(ctx context.Context, key string, msgs []model.EmailMessage) {
	if msgs == nil {
		msgs = []model.EmailMessage{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		c.logger.Warn("Failed to encode batch for cache", zap.Error(err))
		return
	}

	if err := c.rdb.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Redis cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func cloneMessages(msgs []model.EmailMessage) []model.EmailMessage {
	out := make([]model.EmailMessage, len(msgs))
	copy(out, msgs)
	return out
}
