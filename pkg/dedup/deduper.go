package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func key(scope, id string) string {
	return fmt.Sprintf("dedup:%s:%s", scope, id)
}

// AcquireOnce tries to acquire a dedup lock for a given scope + id
// returns true if this is the FIRST time processing
// returns false if it's a duplicate
func (d *Deduper) AcquireOnce(ctx context.Context, scope, id string) bool {
	k := key(scope, id)

	ok, err := d.rdb.SetNX(ctx, k, 1, d.ttl).Result()
	if err != nil {
		// Redis 不可用时不阻止处理
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("scope", scope),
			zap.String("id", id),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicate",
			zap.String("scope", scope),
			zap.String("id", id),
			zap.String("dedup_key", k),
		)
	}

	return ok
}

// Release 释放锁，使后续运行可以重新处理（例如发送最终失败时）
func (d *Deduper) Release(ctx context.Context, scope, id string) error {
	if err := d.rdb.Del(ctx, key(scope, id)).Err(); err != nil {
		return fmt.Errorf("failed to release dedup key: %w", err)
	}
	return nil
}
