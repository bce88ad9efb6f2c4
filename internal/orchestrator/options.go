package orchestrator

import (
	"time"

	"github.com/taskinity/example-email/internal/mailbox"
	"github.com/taskinity/example-email/pkg/retry"
)

const (
	DefaultLimit      = 5
	DefaultAttempts   = 3
	DefaultRetryDelay = 5 * time.Second
	// 首次发送 + 2 次重试
	DefaultSendAttempts = 3
	DefaultWorkers      = 4
	MaxWorkers          = 8
)

type Options struct {
	Params mailbox.ConnectionParams
	Limit  int

	FetchPolicy  retry.Policy
	BranchPolicy retry.Policy
	SendPolicy   retry.Policy

	// 发送阶段的并发数，限制在 1..MaxWorkers
	Workers int

	ProcessAttachments bool
	ProcessRegular     bool
}

// DefaultOptions returns the standard policies with both optional
// branches enabled. Callers should start from it rather than a zero value.
func DefaultOptions(params mailbox.ConnectionParams) Options {
	return Options{
		Params:             params,
		Limit:              DefaultLimit,
		FetchPolicy:        retry.NewPolicy(DefaultAttempts, DefaultRetryDelay),
		BranchPolicy:       retry.NewPolicy(DefaultAttempts, DefaultRetryDelay),
		SendPolicy:         retry.NewPolicy(DefaultSendAttempts, DefaultRetryDelay),
		Workers:            DefaultWorkers,
		ProcessAttachments: true,
		ProcessRegular:     true,
	}
}

func (o Options) normalized() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	switch {
	case o.Workers < 1:
		o.Workers = DefaultWorkers
	case o.Workers > MaxWorkers:
		o.Workers = MaxWorkers
	}
	return o
}
