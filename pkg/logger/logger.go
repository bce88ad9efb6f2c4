package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/taskinity/example-email/pkg/trace"
)

// NewLogger builds the production JSON logger; verbose lowers the level to debug.
func NewLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace 从 context 中提取 run_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	runID := trace.FromContext(ctx)
	if runID != "" {
		return logger.With(zap.String("run_id", runID))
	}
	return logger
}
