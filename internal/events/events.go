// Package events carries pipeline observations to logs, metrics and the
// message bus without the pipeline knowing about any of them.
package events

import (
	"context"
	"time"

	"github.com/taskinity/example-email/internal/model"
)

type Type string

const (
	TypeStateChanged    Type = "state.changed"
	TypeFetchStarted    Type = "fetch.started"
	TypeFetchFinished   Type = "fetch.finished"
	TypeClassified      Type = "classified"
	TypeBranchFailed    Type = "branch.failed"
	TypeResponseOutcome Type = "response.outcome"
	TypeRunFinished     Type = "run.finished"
)

// Event is a flat record; only the fields relevant to Type are set.
type Event struct {
	Type  Type
	RunID string
	At    time.Time

	// state.changed
	From string
	To   string

	// fetch.*
	Attempt  int
	Fetched  int
	Skipped  int
	CacheHit bool

	// classified
	Counts model.CategoryCounts

	// branch.failed / response.outcome
	Category  model.Category
	SourceID  string
	Recipient string
	Attempts  int
	Duplicate bool

	// 失败原因；ErrorKind 为错误类别（connect、auth 等）
	Err       error
	ErrorKind string

	// run.finished；State 为中止时所在的阶段
	State    string
	Stats    *model.RunStats
	Duration time.Duration
}

// Failed reports whether the event carries an error.
func (e Event) Failed() bool {
	return e.Err != nil
}

// Observer receives pipeline events. Observe must not block for long and
// must be safe for concurrent use; sends report outcomes in parallel.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Observe(ctx context.Context, e Event) {
	f(ctx, e)
}

// Multi fans an event out to every observer in order.
type Multi []Observer

func (m Multi) Observe(ctx context.Context, e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, e)
		}
	}
}

// Nop discards events.
var Nop Observer = ObserverFunc(func(context.Context, Event) {})
