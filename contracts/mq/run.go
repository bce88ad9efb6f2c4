package mq

import "time"

// 路由键
const (
	RoutingRunCompleted   = "mail.run.completed"
	RoutingRunAborted     = "mail.run.aborted"
	RoutingResponseSent   = "mail.response.sent"
	RoutingResponseFailed = "mail.response.failed"
)

// CategoryCountsPayload 按类别的计数
type CategoryCountsPayload struct {
	Urgent        int `json:"urgent"`
	HasAttachment int `json:"has_attachment"`
	Regular       int `json:"regular"`
}

// RunCompletedPayload 一次运行完成
type RunCompletedPayload struct {
	RunID           string                `json:"run_id"`
	Fetched         int                   `json:"fetched"`
	ParseSkipped    int                   `json:"parse_skipped"`
	CacheHit        bool                  `json:"cache_hit"`
	Classified      CategoryCountsPayload `json:"classified"`
	FailedBranches  []string              `json:"failed_branches,omitempty"`
	SkippedBranches []string              `json:"skipped_branches,omitempty"`
	Attempted       int                   `json:"attempted"`
	Sent            int                   `json:"sent"`
	Failed          int                   `json:"failed"`
	Duplicates      int                   `json:"duplicates"`
	DurationMs      int64                 `json:"duration_ms"`
	FinishedAt      time.Time             `json:"finished_at"`
}

// RunAbortedPayload 运行中止（取信失败或被取消）
type RunAbortedPayload struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"`
	Error     string    `json:"error"`
	AbortedAt time.Time `json:"aborted_at"`
}

// ResponseOutcomePayload 单封回复的发送结果
type ResponseOutcomePayload struct {
	RunID     string    `json:"run_id"`
	SourceID  string    `json:"source_id"`
	Recipient string    `json:"recipient"`
	Category  string    `json:"category"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	At        time.Time `json:"at"`
}
