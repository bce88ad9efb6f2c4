package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	mqcontracts "github.com/taskinity/example-email/contracts/mq"
	"github.com/taskinity/example-email/internal/model"
)

// Publisher is satisfied by *mq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// PublishObserver 把发送结果和运行结果发布到消息总线。发布失败只记日志。
type PublishObserver struct {
	pub    Publisher
	logger *zap.Logger
	now    func() time.Time
}

func NewPublishObserver(pub Publisher, logger *zap.Logger) *PublishObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishObserver{pub: pub, logger: logger, now: time.Now}
}

func (o *PublishObserver) Observe(ctx context.Context, e Event) {
	var key string
	var payload any

	switch e.Type {
	case TypeResponseOutcome:
		if e.Duplicate {
			return
		}
		key = mqcontracts.RoutingResponseSent
		p := mqcontracts.ResponseOutcomePayload{
			RunID:     e.RunID,
			SourceID:  e.SourceID,
			Recipient: e.Recipient,
			Category:  e.Category.String(),
			Attempts:  e.Attempts,
			At:        o.now(),
		}
		if e.Failed() {
			key = mqcontracts.RoutingResponseFailed
			p.Error = e.Err.Error()
			p.ErrorKind = e.ErrorKind
		}
		payload = p
	case TypeRunFinished:
		if e.Failed() {
			key = mqcontracts.RoutingRunAborted
			payload = mqcontracts.RunAbortedPayload{
				RunID:     e.RunID,
				State:     e.State,
				Error:     e.Err.Error(),
				AbortedAt: o.now(),
			}
			break
		}
		if e.Stats == nil {
			return
		}
		key = mqcontracts.RoutingRunCompleted
		payload = runCompletedPayload(*e.Stats, o.now())
	default:
		return
	}

	if err := o.pub.Publish(ctx, key, payload); err != nil {
		o.logger.Warn("Failed to publish event",
			zap.String("routing_key", key),
			zap.String("run_id", e.RunID),
			zap.Error(err),
		)
	}
}

func runCompletedPayload(s model.RunStats, at time.Time) mqcontracts.RunCompletedPayload {
	return mqcontracts.RunCompletedPayload{
		RunID:        s.RunID,
		Fetched:      s.Fetched,
		ParseSkipped: s.ParseSkipped,
		CacheHit:     s.CacheHit,
		Classified: mqcontracts.CategoryCountsPayload{
			Urgent:        s.Classified.Urgent,
			HasAttachment: s.Classified.HasAttachment,
			Regular:       s.Classified.Regular,
		},
		FailedBranches:  categoryStrings(s.FailedBranches),
		SkippedBranches: categoryStrings(s.SkippedBranches),
		Attempted:       s.Attempted,
		Sent:            s.Sent,
		Failed:          s.Failed,
		Duplicates:      s.Duplicates,
		DurationMs:      s.Duration.Milliseconds(),
		FinishedAt:      at,
	}
}

func categoryStrings(cats []model.Category) []string {
	if len(cats) == 0 {
		return nil
	}
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.String()
	}
	return out
}
