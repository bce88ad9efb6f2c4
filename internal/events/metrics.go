package events

import (
	"context"

	"github.com/taskinity/example-email/internal/model"
	"github.com/taskinity/example-email/pkg/metrics"
)

// MetricsObserver 把事件记录到 Prometheus 指标
type MetricsObserver struct{}

func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

func (o *MetricsObserver) Observe(_ context.Context, e Event) {
	switch e.Type {
	case TypeFetchFinished:
		result := "ok"
		switch {
		case e.Failed():
			result = "error"
		case e.CacheHit:
			result = "cache"
		}
		metrics.RecordFetch(result, e.Duration, e.Fetched, e.Skipped)
	case TypeClassified:
		for _, c := range model.Categories() {
			metrics.AddClassified(c.String(), e.Counts.Get(c))
		}
	case TypeBranchFailed:
		metrics.IncrementBranchFailure(e.Category.String())
	case TypeResponseOutcome:
		status := "sent"
		switch {
		case e.Duplicate:
			status = "duplicate"
		case e.Failed():
			status = "failed"
		}
		metrics.IncrementResponse(e.Category.String(), status, e.ErrorKind)
	case TypeRunFinished:
		status := "completed"
		if e.Failed() {
			status = "aborted"
		}
		metrics.RecordRun(status, e.Duration)
	}
}
