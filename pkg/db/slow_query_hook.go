package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/taskinity/example-email/pkg/metrics"
)

const DefaultSlowThreshold = 100 * time.Millisecond

type queryKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// SlowQueryTracer 慢查询监控 Tracer，同时记录每条语句的耗时
type SlowQueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
	now           func() time.Time
}

// NewSlowQueryTracer 创建慢查询 Tracer，threshold 为 0 时使用 100ms
func NewSlowQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *SlowQueryTracer {
	if slowThreshold == 0 {
		slowThreshold = DefaultSlowThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlowQueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
		now:           time.Now,
	}
}

func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryKey{}, queryStart{at: t.now(), sql: data.SQL})
}

func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryKey{}).(queryStart)
	if !ok {
		return
	}

	duration := t.now().Sub(start.at)
	op, table := describe(start.sql)
	metrics.RecordDBQueryDuration(op, table, duration)

	if duration <= t.slowThreshold {
		return
	}

	sql := truncate(start.sql, 200)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("took", duration),
		zap.String("command_tag", data.CommandTag.String()),
	}
	if data.Err != nil {
		fields = append(fields, zap.Error(data.Err))
	}
	t.logger.Warn("slow-query", fields...)
	metrics.IncrementSlowQuery(sql, duration)
}

var tableMarker = map[string]string{
	"select": "from",
	"delete": "from",
	"insert": "into",
	"update": "update",
	"create": "table",
}

// describe 粗略解析语句类型和表名，用作指标标签
func describe(sql string) (operation, table string) {
	fields := strings.Fields(strings.ToLower(sql))
	if len(fields) == 0 {
		return "unknown", "unknown"
	}
	operation = fields[0]
	marker, ok := tableMarker[operation]
	if !ok {
		return operation, "unknown"
	}

	for i, f := range fields {
		if f != marker {
			continue
		}
		for _, next := range fields[i+1:] {
			switch next {
			case "if", "not", "exists":
				continue
			}
			return operation, strings.Trim(next, "(;")
		}
	}
	return operation, "unknown"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
