package orchestrator

import (
	"context"
	"fmt"

	"github.com/taskinity/example-email/internal/handler"
	"github.com/taskinity/example-email/internal/model"
)

// Processor turns one category's messages into drafts. It is the unit the
// branch retry policy wraps.
type Processor interface {
	Process(ctx context.Context, cat model.Category, msgs []model.EmailMessage) ([]model.ResponseDraft, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, cat model.Category, msgs []model.EmailMessage) ([]model.ResponseDraft, error)

func (f ProcessorFunc) Process(ctx context.Context, cat model.Category, msgs []model.EmailMessage) ([]model.ResponseDraft, error) {
	return f(ctx, cat, msgs)
}

// HandlerProcessor 用类别处理器生成草稿
type HandlerProcessor struct {
	handlers handler.Set
}

func NewHandlerProcessor(handlers handler.Set) *HandlerProcessor {
	return &HandlerProcessor{handlers: handlers}
}

func (p *HandlerProcessor) Process(_ context.Context, cat model.Category, msgs []model.EmailMessage) ([]model.ResponseDraft, error) {
	h, ok := p.handlers[cat]
	if !ok {
		return nil, fmt.Errorf("no handler registered for category %q", cat)
	}
	drafts := make([]model.ResponseDraft, 0, len(msgs))
	for _, msg := range msgs {
		drafts = append(drafts, h.Handle(msg))
	}
	return drafts, nil
}
