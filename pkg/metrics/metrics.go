package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// 取信耗时（秒），result: ok, cache, error
	MailFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailflow_fetch_duration_seconds",
			Help:    "Mailbox fetch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"result"},
	)

	// 取到的邮件数
	MailFetchedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailflow_fetched_messages_total",
			Help: "Total number of messages fetched from the mailbox",
		},
	)

	// 解析失败被跳过的邮件数
	MailParseSkippedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailflow_parse_skipped_total",
			Help: "Total number of messages skipped because they could not be parsed",
		},
	)

	// 分类计数
	MailClassifiedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_classified_total",
			Help: "Total number of messages per category",
		},
		[]string{"category"}, // category: urgent, has_attachment, regular
	)

	// 分支失败计数
	BranchFailureCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_branch_failures_total",
			Help: "Total number of category branches that exhausted their retries",
		},
		[]string{"category"},
	)

	// 回复发送计数
	ResponseCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_responses_total",
			Help: "Total number of responses by outcome",
		},
		[]string{"category", "status"}, // status: sent, failed, duplicate
	)

	// 发送失败按类型计数
	SendErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailflow_send_errors_total",
			Help: "Total number of failed sends by error kind",
		},
		[]string{"kind"},
	)

	// 运行耗时（秒）
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailflow_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		},
		[]string{"status"}, // status: completed, aborted
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Total number of queries slower than the configured threshold",
		},
	)
)

// RecordFetch 记录一次取信
func RecordFetch(result string, duration time.Duration, fetched, skipped int) {
	MailFetchDuration.WithLabelValues(result).Observe(duration.Seconds())
	MailFetchedCount.Add(float64(fetched))
	MailParseSkippedCount.Add(float64(skipped))
}

// AddClassified 增加分类计数
func AddClassified(category string, n int) {
	MailClassifiedCount.WithLabelValues(category).Add(float64(n))
}

// IncrementBranchFailure 增加分支失败计数
func IncrementBranchFailure(category string) {
	BranchFailureCount.WithLabelValues(category).Inc()
}

// IncrementResponse 增加回复计数；status 为 failed 时同时按错误类型计数
func IncrementResponse(category, status, errorKind string) {
	ResponseCount.WithLabelValues(category, status).Inc()
	if status == "failed" && errorKind != "" {
		SendErrorCount.WithLabelValues(errorKind).Inc()
	}
}

// RecordRun 记录一次运行
func RecordRun(status string, duration time.Duration) {
	RunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(_ string, _ time.Duration) {
	SlowQueryCount.Inc()
}

// Push 把默认 registry 推送到 Pushgateway（一次性任务没有常驻的 /metrics 端点）
func Push(url, job string) error {
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
