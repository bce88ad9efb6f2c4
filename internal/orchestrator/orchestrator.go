package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taskinity/example-email/internal/classifier"
	"github.com/taskinity/example-email/internal/events"
	"github.com/taskinity/example-email/internal/mailbox"
	"github.com/taskinity/example-email/internal/model"
	"github.com/taskinity/example-email/internal/responder"
	"github.com/taskinity/example-email/pkg/logger"
	"github.com/taskinity/example-email/pkg/retry"
	"github.com/taskinity/example-email/pkg/trace"
)

// Fetcher is satisfied by *mailbox.Reader.
type Fetcher interface {
	Fetch(ctx context.Context, params mailbox.ConnectionParams, limit int) (mailbox.Batch, error)
}

// Sender is satisfied by *responder.Responder. One call is one attempt.
type Sender interface {
	Send(ctx context.Context, draft model.ResponseDraft) error
}

// ReplyGuard is satisfied by *dedup.Deduper.
type ReplyGuard interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
	Release(ctx context.Context, scope, id string) error
}

const replyScope = "reply"

// Deps 编排器依赖；Guard、Observer、Logger 可为空
type Deps struct {
	Reader    Fetcher
	Processor Processor
	Sender    Sender
	Guard     ReplyGuard
	Observer  events.Observer
	Logger    *zap.Logger
}

type Orchestrator struct {
	reader    Fetcher
	processor Processor
	sender    Sender
	guard     ReplyGuard
	observer  events.Observer
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

func New(deps Deps, opts Options) *Orchestrator {
	o := &Orchestrator{
		reader:    deps.Reader,
		processor: deps.Processor,
		sender:    deps.Sender,
		guard:     deps.Guard,
		observer:  deps.Observer,
		logger:    deps.Logger,
		opts:      opts.normalized(),
		now:       time.Now,
	}
	if o.observer == nil {
		o.observer = events.Nop
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// run 单次运行的可变状态
type run struct {
	mu    sync.Mutex
	stats model.RunStats
	state State
}

// Run executes one pipeline pass. On success it returns the final stats;
// the only failures are fetch exhaustion and cancellation, both reported
// as *RunError with no stats.
func (o *Orchestrator) Run(ctx context.Context) (model.RunStats, error) {
	ctx, runID := trace.Ensure(ctx)
	start := o.now()
	r := &run{stats: model.RunStats{RunID: runID}, state: StateIdle}

	o.transition(ctx, r, StateFetching)
	batch, err := o.fetch(ctx)
	if err != nil {
		return o.abort(ctx, r, err, start)
	}
	r.stats.Fetched = len(batch.Messages)
	r.stats.ParseSkipped = batch.Skipped
	r.stats.CacheHit = batch.FromCache

	if err := ctx.Err(); err != nil {
		return o.abort(ctx, r, err, start)
	}
	o.transition(ctx, r, StateClassifying)
	classified := classifier.Partition(batch.Messages)
	r.stats.Classified = classified.Counts()
	o.emit(ctx, events.Event{Type: events.TypeClassified, Counts: r.stats.Classified})

	if classified.Len() == 0 {
		return o.complete(ctx, r, start)
	}

	if err := ctx.Err(); err != nil {
		return o.abort(ctx, r, err, start)
	}
	o.transition(ctx, r, StateProcessing)
	drafts := o.process(ctx, r, classified)

	if err := ctx.Err(); err != nil {
		return o.abort(ctx, r, err, start)
	}
	o.transition(ctx, r, StateSending)
	o.send(ctx, r, drafts)

	return o.complete(ctx, r, start)
}

func (o *Orchestrator) fetch(ctx context.Context) (mailbox.Batch, error) {
	var batch mailbox.Batch
	err := o.opts.FetchPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		o.emit(ctx, events.Event{Type: events.TypeFetchStarted, Attempt: attempt})

		started := o.now()
		b, err := o.reader.Fetch(ctx, o.opts.Params, o.opts.Limit)
		ev := events.Event{
			Type:     events.TypeFetchFinished,
			Attempt:  attempt,
			Duration: o.now().Sub(started),
		}
		if err != nil {
			ev.Err = err
			ev.ErrorKind = fetchErrorKind(err)
			o.emit(ctx, ev)
			return err
		}

		ev.Fetched = len(b.Messages)
		ev.Skipped = b.Skipped
		ev.CacheHit = b.FromCache
		o.emit(ctx, ev)
		batch = b
		return nil
	}, retry.Always)
	return batch, err
}

type branchResult struct {
	drafts []model.ResponseDraft
	err    error
	ran    bool
}

// process 三个分支并发执行，一个分支失败不影响其它分支
func (o *Orchestrator) process(ctx context.Context, r *run, classified model.ClassifiedBatch) []model.ResponseDraft {
	cats := model.Categories()
	results := make([]branchResult, len(cats))

	var g errgroup.Group
	for i, cat := range cats {
		if !o.enabled(cat) {
			r.stats.SkippedBranches = append(r.stats.SkippedBranches, cat)
			continue
		}
		msgs := classified.Group(cat)
		if len(msgs) == 0 {
			continue
		}
		g.Go(func() error {
			drafts, err := o.runBranch(ctx, cat, msgs)
			results[i] = branchResult{drafts: drafts, err: err, ran: true}
			return nil
		})
	}
	_ = g.Wait()

	var drafts []model.ResponseDraft
	for i, cat := range cats {
		res := results[i]
		if !res.ran {
			continue
		}
		if res.err != nil {
			r.stats.FailedBranches = append(r.stats.FailedBranches, cat)
			o.emit(ctx, events.Event{
				Type:     events.TypeBranchFailed,
				Category: cat,
				Attempts: o.opts.BranchPolicy.Attempts(),
				Err:      res.err,
			})
			continue
		}
		r.stats.Drafted.Add(cat, len(res.drafts))
		drafts = append(drafts, res.drafts...)
	}
	return drafts
}

func (o *Orchestrator) runBranch(ctx context.Context, cat model.Category, msgs []model.EmailMessage) ([]model.ResponseDraft, error) {
	var drafts []model.ResponseDraft
	err := o.opts.BranchPolicy.Do(ctx, func(ctx context.Context, attempt int) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%s branch panicked: %v", cat, p)
			}
		}()

		out, perr := o.processor.Process(ctx, cat, msgs)
		if perr != nil {
			logger.WithTrace(ctx, o.logger).Warn("Branch attempt failed",
				zap.String("category", cat.String()),
				zap.Int("attempt", attempt),
				zap.Error(perr),
			)
			return perr
		}
		drafts = out
		return nil
	}, retry.Always)
	return drafts, err
}

func (o *Orchestrator) enabled(cat model.Category) bool {
	switch cat {
	case model.CategoryHasAttachment:
		return o.opts.ProcessAttachments
	case model.CategoryRegular:
		return o.opts.ProcessRegular
	}
	return true
}

// send 有界并发发送；每封草稿独立重试，结果在锁内累加
func (o *Orchestrator) send(ctx context.Context, r *run, drafts []model.ResponseDraft) {
	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for _, d := range drafts {
		g.Go(func() error {
			o.sendOne(ctx, r, d)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) sendOne(ctx context.Context, r *run, d model.ResponseDraft) {
	guardKey := o.guardKey(d)
	if guardKey != "" && !o.guard.AcquireOnce(ctx, replyScope, guardKey) {
		r.mu.Lock()
		r.stats.Duplicates++
		r.mu.Unlock()
		o.emitOutcome(ctx, d, 0, nil, true)
		return
	}

	attempts, err := o.deliver(ctx, d)

	r.mu.Lock()
	r.stats.Attempted++
	if err != nil {
		r.stats.Failed++
	} else {
		r.stats.Sent++
	}
	r.mu.Unlock()

	if err != nil && guardKey != "" {
		// 发送失败，释放锁让下次运行可以重试
		if rerr := o.guard.Release(context.WithoutCancel(ctx), replyScope, guardKey); rerr != nil {
			logger.WithTrace(ctx, o.logger).Warn("Failed to release reply guard",
				zap.String("source_id", d.SourceID),
				zap.Error(rerr),
			)
		}
	}
	o.emitOutcome(ctx, d, attempts, err, false)
}

// deliver 按发送策略重试，只重试 responder.Retryable 的错误
func (o *Orchestrator) deliver(ctx context.Context, d model.ResponseDraft) (int, error) {
	attempts := 0
	err := o.opts.SendPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		return o.sender.Send(ctx, d)
	}, responder.Retryable)
	return attempts, err
}

func (o *Orchestrator) guardKey(d model.ResponseDraft) string {
	if o.guard == nil || d.SourceID == "" {
		return ""
	}
	p := o.opts.Params
	return fmt.Sprintf("%s/%s/%s/%s", p.Server, p.Username, p.Folder, d.SourceID)
}

// Respond classifies, drafts and sends a reply for a single message.
func (o *Orchestrator) Respond(ctx context.Context, msg model.EmailMessage) (model.ResponseDraft, error) {
	ctx, _ = trace.Ensure(ctx)

	cat := classifier.Classify(msg)
	drafts, err := o.runBranch(ctx, cat, []model.EmailMessage{msg})
	if err != nil {
		return model.ResponseDraft{}, err
	}
	if len(drafts) != 1 {
		return model.ResponseDraft{}, fmt.Errorf("%s processor returned %d drafts for one message", cat, len(drafts))
	}
	draft := drafts[0]

	attempts, err := o.deliver(ctx, draft)
	o.emitOutcome(ctx, draft, attempts, err, false)
	return draft, err
}

func (o *Orchestrator) complete(ctx context.Context, r *run, start time.Time) (model.RunStats, error) {
	o.transition(ctx, r, StateCompleted)
	r.stats.Duration = o.now().Sub(start)

	stats := r.stats.Snapshot()
	o.emit(ctx, events.Event{
		Type:     events.TypeRunFinished,
		Stats:    &stats,
		Duration: stats.Duration,
	})
	return stats, nil
}

func (o *Orchestrator) abort(ctx context.Context, r *run, err error, start time.Time) (model.RunStats, error) {
	from := r.state
	o.transition(ctx, r, StateAborted)

	runErr := &RunError{State: from, Err: err}
	o.emit(ctx, events.Event{
		Type:     events.TypeRunFinished,
		State:    from.String(),
		Err:      runErr,
		Duration: o.now().Sub(start),
	})
	return model.RunStats{}, runErr
}

func (o *Orchestrator) transition(ctx context.Context, r *run, to State) {
	from := r.state
	if from.Terminal() {
		// 终态之后不再迁移
		o.logger.Warn("Ignoring transition out of terminal state",
			zap.String("from", from.String()), zap.String("to", to.String()))
		return
	}
	r.state = to
	o.emit(ctx, events.Event{Type: events.TypeStateChanged, From: from.String(), To: to.String()})
}

func (o *Orchestrator) emitOutcome(ctx context.Context, d model.ResponseDraft, attempts int, err error, duplicate bool) {
	ev := events.Event{
		Type:      events.TypeResponseOutcome,
		Category:  d.Category,
		SourceID:  d.SourceID,
		Recipient: d.Recipient,
		Attempts:  attempts,
		Duplicate: duplicate,
		Err:       err,
	}
	if err != nil {
		ev.ErrorKind = sendErrorKind(err)
	}
	o.emit(ctx, ev)
}

func (o *Orchestrator) emit(ctx context.Context, e events.Event) {
	e.RunID = trace.FromContext(ctx)
	e.At = o.now()
	o.observer.Observe(ctx, e)
}

func fetchErrorKind(err error) string {
	var fe *mailbox.FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	return "unknown"
}

func sendErrorKind(err error) string {
	if k := responder.KindOf(err); k != 0 {
		return k.String()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "unknown"
}
