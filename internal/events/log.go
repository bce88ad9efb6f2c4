package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/taskinity/example-email/pkg/logger"
)

// LogObserver 把事件写成结构化日志
type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(l *zap.Logger) *LogObserver {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogObserver{logger: l}
}

func (o *LogObserver) Observe(ctx context.Context, e Event) {
	log := logger.WithTrace(ctx, o.logger)

	switch e.Type {
	case TypeStateChanged:
		log.Debug("State changed", zap.String("from", e.From), zap.String("to", e.To))
	case TypeFetchStarted:
		log.Info("Fetching mailbox", zap.Int("attempt", e.Attempt))
	case TypeFetchFinished:
		if e.Failed() {
			log.Warn("Mailbox fetch attempt failed",
				zap.Int("attempt", e.Attempt),
				zap.String("kind", e.ErrorKind),
				zap.Error(e.Err),
			)
			return
		}
		log.Info("Mailbox fetched",
			zap.Int("fetched", e.Fetched),
			zap.Int("skipped", e.Skipped),
			zap.Bool("cache_hit", e.CacheHit),
			zap.Duration("took", e.Duration),
		)
	case TypeClassified:
		log.Info("Messages classified",
			zap.Int("urgent", e.Counts.Urgent),
			zap.Int("has_attachment", e.Counts.HasAttachment),
			zap.Int("regular", e.Counts.Regular),
		)
	case TypeBranchFailed:
		log.Error("Branch exhausted retries",
			zap.String("category", e.Category.String()),
			zap.Int("attempts", e.Attempts),
			zap.Error(e.Err),
		)
	case TypeResponseOutcome:
		fields := []zap.Field{
			zap.String("category", e.Category.String()),
			zap.String("source_id", e.SourceID),
			zap.String("recipient", e.Recipient),
			zap.Int("attempts", e.Attempts),
		}
		switch {
		case e.Duplicate:
			log.Info("Response skipped, already answered", fields...)
		case e.Failed():
			log.Error("Response failed", append(fields, zap.String("kind", e.ErrorKind), zap.Error(e.Err))...)
		default:
			log.Info("Response sent", fields...)
		}
	case TypeRunFinished:
		if e.Failed() {
			log.Error("Run aborted", zap.Error(e.Err), zap.Duration("took", e.Duration))
			return
		}
		if e.Stats == nil {
			return
		}
		log.Info("Run completed",
			zap.Int("fetched", e.Stats.Fetched),
			zap.Int("urgent", e.Stats.Classified.Urgent),
			zap.Int("has_attachment", e.Stats.Classified.HasAttachment),
			zap.Int("regular", e.Stats.Classified.Regular),
			zap.Int("attempted", e.Stats.Attempted),
			zap.Int("sent", e.Stats.Sent),
			zap.Int("failed", e.Stats.Failed),
			zap.Duration("took", e.Duration),
		)
	}
}
