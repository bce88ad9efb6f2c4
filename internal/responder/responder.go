package responder

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taskinity/example-email/internal/model"
	"github.com/taskinity/example-email/pkg/logger"
)

const DefaultTimeout = 30 * time.Second

// Config 发件服务器参数
type Config struct {
	Server    string
	Port      int
	Username  string
	Password  string
	FromEmail string
	ReplyTo   string
	Security  Security
	// 单次发送的超时（连接建立 + 发送）
	Timeout time.Duration
}

// Transport delivers one envelope. Errors should be *SendError; anything
// else is classified by the Responder.
type Transport interface {
	Deliver(ctx context.Context, cfg Config, env Envelope) error
	Verify(ctx context.Context, cfg Config) error
}

// Responder 负责把草稿交给发送通道，一次调用只尝试一次，重试由调用方决定
type Responder struct {
	cfg       Config
	transport Transport
	logger    *zap.Logger
}

func New(cfg Config, transport Transport, logger *zap.Logger) *Responder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.Username
	}
	if cfg.ReplyTo == "" {
		cfg.ReplyTo = cfg.FromEmail
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{cfg: cfg, transport: transport, logger: logger}
}

// Send makes one delivery attempt bounded by the configured timeout.
// The returned error is always a *SendError.
func (r *Responder) Send(ctx context.Context, draft model.ResponseDraft) error {
	if err := r.credentials(); err != nil {
		return err
	}
	if draft.Recipient == "" {
		return &SendError{Kind: KindProtocol, Err: errors.New("draft has no recipient")}
	}

	env := Envelope{
		From:      r.cfg.FromEmail,
		To:        draft.Recipient,
		ReplyTo:   r.cfg.ReplyTo,
		Subject:   draft.Subject,
		Body:      draft.Body,
		InReplyTo: draft.InReplyTo,
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	err := r.transport.Deliver(ctx, r.cfg, env)
	if err != nil {
		err = classify(err, KindProtocol)
		logger.WithTrace(ctx, r.logger).Debug("Send attempt failed",
			zap.String("recipient", draft.Recipient),
			zap.String("source_id", draft.SourceID),
			zap.Stringer("kind", KindOf(err)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Check connects and authenticates against the outbound server.
func (r *Responder) Check(ctx context.Context) error {
	if err := r.credentials(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	return classify(r.transport.Verify(ctx, r.cfg), KindProtocol)
}

// Config returns the effective configuration with defaults applied.
func (r *Responder) Config() Config {
	return r.cfg
}

func (r *Responder) credentials() error {
	if r.cfg.Username == "" || r.cfg.Password == "" {
		return &SendError{Kind: KindMissingCredentials, Err: errors.New("smtp username and password are required")}
	}
	return nil
}
