package mailbox

import (
	"context"

	"go.uber.org/zap"

	"github.com/taskinity/example-email/internal/model"
	"github.com/taskinity/example-email/pkg/logger"
)

// Batch 一次取信的结果
type Batch struct {
	// 最多 limit 封最新邮件，旧 → 新
	Messages []model.EmailMessage
	// 解析失败被跳过的数量
	Skipped int
	// 是否命中缓存
	FromCache bool
}

// Reader fetches and normalizes messages, caching successful batches by
// connection fingerprint. It never retries; retrying is up to the caller.
type Reader struct {
	store  Store
	cache  Cache
	logger *zap.Logger
}

// NewReader builds a Reader. A nil cache disables caching.
func NewReader(store Store, cache Cache, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{store: store, cache: cache, logger: logger}
}

func (r *Reader) Fetch(ctx context.Context, params ConnectionParams, limit int) (Batch, error) {
	log := logger.WithTrace(ctx, r.logger)
	key := Fingerprint(params, limit)

	if r.cache != nil {
		if msgs, ok := r.cache.Get(ctx, key); ok {
			log.Debug("Mailbox batch served from cache",
				zap.String("folder", params.Folder),
				zap.Int("count", len(msgs)),
			)
			return Batch{Messages: msgs, FromCache: true}, nil
		}
	}

	raws, err := r.store.FetchRaw(ctx, params, limit)
	if err != nil {
		fe := asFetchError(err)
		log.Warn("Mailbox fetch failed",
			zap.String("server", params.Server),
			zap.String("kind", fe.Kind.String()),
			zap.Error(fe.Err),
		)
		return Batch{}, fe
	}
	if limit > 0 && len(raws) > limit {
		raws = raws[len(raws)-limit:]
	}

	batch := Batch{Messages: make([]model.EmailMessage, 0, len(raws))}
	for _, raw := range raws {
		msg, err := ParseMessage(raw.ID, raw.Data)
		if err != nil {
			batch.Skipped++
			log.Warn("Skipping unparseable message",
				zap.String("id", raw.ID),
				zap.Error(err),
			)
			continue
		}
		batch.Messages = append(batch.Messages, msg)
	}

	if r.cache != nil {
		r.cache.Set(ctx, key, batch.Messages)
	}

	log.Info("Mailbox batch fetched",
		zap.String("folder", params.Folder),
		zap.Int("count", len(batch.Messages)),
		zap.Int("skipped", batch.Skipped),
	)
	return batch, nil
}
