package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taskinity/example-email/internal/repository"
)

// RunStore is satisfied by *repository.RunRepository.
type RunStore interface {
	Insert(ctx context.Context, rec *repository.RunRecord) error
}

// RunRecorder 在运行结束时写一条运行记录，写库失败只记日志
type RunRecorder struct {
	store  RunStore
	logger *zap.Logger
	now    func() time.Time
}

func NewRunRecorder(store RunStore, logger *zap.Logger) *RunRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunRecorder{store: store, logger: logger, now: time.Now}
}

func (o *RunRecorder) Observe(ctx context.Context, e Event) {
	if e.Type != TypeRunFinished {
		return
	}

	rec := runRecord(e, o.now())
	// 运行被取消时仍然要落库
	if err := o.store.Insert(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("Failed to record run",
			zap.String("run_id", e.RunID),
			zap.Error(err),
		)
	}
}

func runRecord(e Event, at time.Time) *repository.RunRecord {
	rec := &repository.RunRecord{
		RunID:      e.RunID,
		Status:     "completed",
		Duration:   e.Duration,
		FinishedAt: at,
	}
	if e.Failed() {
		rec.Status = "aborted"
		rec.AbortedIn = e.State
		rec.Error = e.Err.Error()
		return rec
	}
	if s := e.Stats; s != nil {
		rec.Fetched = s.Fetched
		rec.ParseSkipped = s.ParseSkipped
		rec.CacheHit = s.CacheHit
		rec.Urgent = s.Classified.Urgent
		rec.HasAttachment = s.Classified.HasAttachment
		rec.Regular = s.Classified.Regular
		rec.Attempted = s.Attempted
		rec.Sent = s.Sent
		rec.Failed = s.Failed
		rec.Duplicates = s.Duplicates
		rec.FailedBranches = categoryStrings(s.FailedBranches)
		rec.SkippedBranches = categoryStrings(s.SkippedBranches)
	}
	return rec
}
