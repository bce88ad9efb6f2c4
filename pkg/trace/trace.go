package trace

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const runIDKey ctxKey = "run_id"

// GenerateRunID 生成一个新的 run ID
func GenerateRunID() string {
	return uuid.NewString()
}

// FromContext 从 context 中获取 run_id
func FromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(runIDKey).(string); ok {
		return runID
	}
	return ""
}

// WithContext 将 run_id 添加到 context 中
func WithContext(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// Ensure returns ctx carrying a run ID, generating one when absent.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := GenerateRunID()
	return WithContext(ctx, id), id
}
