package responder

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/taskinity/example-email/pkg/circuitbreaker"
)

const (
	portImplicitTLS = 465
	portSTARTTLS    = 587
)

// SMTPTransport 基于 net/smtp 的发送实现。加密方式由 Config.Security 决定，
// 默认按端口：465 隐式 TLS，587 先 STARTTLS 再认证，其它端口明文。
type SMTPTransport struct {
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
	now     func() time.Time

	// 测试时可替换 TLS 配置
	TLSConfig *tls.Config
}

func NewSMTPTransport(logger *zap.Logger) *SMTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.IsFailure = Retryable
	return &SMTPTransport{
		breaker: circuitbreaker.NewCircuitBreaker(cbCfg),
		logger:  logger,
		now:     time.Now,
	}
}

// Deliver composes env and sends it in one SMTP session.
func (t *SMTPTransport) Deliver(ctx context.Context, cfg Config, env Envelope) error {
	msg, err := Compose(env, t.now())
	if err != nil {
		return &SendError{Kind: KindProtocol, Err: err}
	}
	from, err := bareAddress(env.From)
	if err != nil {
		return &SendError{Kind: KindProtocol, Err: err}
	}
	to, err := bareAddress(env.To)
	if err != nil {
		return &SendError{Kind: KindProtocol, Err: err}
	}

	return t.guard(ctx, func(ctx context.Context) error {
		c, err := t.open(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Mail(from); err != nil {
			return t.fail(ctx, err, KindProtocol)
		}
		if err := c.Rcpt(to); err != nil {
			return t.fail(ctx, err, KindProtocol)
		}
		w, err := c.Data()
		if err != nil {
			return t.fail(ctx, err, KindProtocol)
		}
		if _, err := w.Write(msg); err != nil {
			return t.fail(ctx, err, KindProtocol)
		}
		if err := w.Close(); err != nil {
			return t.fail(ctx, err, KindProtocol)
		}
		if err := c.Quit(); err != nil {
			// 邮件已被接受，QUIT 失败不影响结果
			t.logger.Debug("SMTP quit failed", zap.Error(err))
		}
		return nil
	})
}

// Verify connects and authenticates without sending anything.
func (t *SMTPTransport) Verify(ctx context.Context, cfg Config) error {
	return t.guard(ctx, func(ctx context.Context) error {
		c, err := t.open(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Noop(); err != nil {
			return t.fail(ctx, err, KindProtocol)
		}
		_ = c.Quit()
		return nil
	})
}

// BreakerState exposes the circuit breaker state for diagnostics.
func (t *SMTPTransport) BreakerState() circuitbreaker.State {
	return t.breaker.GetState()
}

func (t *SMTPTransport) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	err := t.breaker.Execute(ctx, fn)
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return &SendError{Kind: KindConnect, Err: err}
	}
	return err
}

// open 建立连接、按端口加密并认证
func (t *SMTPTransport) open(ctx context.Context, cfg Config) (*smtp.Client, error) {
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &SendError{Kind: KindTimeout, Err: err}
		}
		return nil, &SendError{Kind: KindConnect, Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// ctx 取消时关闭连接，阻塞中的读写立即返回
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	c, err := t.handshake(ctx, conn, cfg)
	if err != nil {
		stop()
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (t *SMTPTransport) handshake(ctx context.Context, conn net.Conn, cfg Config) (*smtp.Client, error) {
	tlsConfig := t.tlsConfig(cfg.Server)
	mode := cfg.Security.resolve(cfg.Port)
	t.logger.Debug("SMTP handshake", zap.String("server", cfg.Server), zap.Stringer("security", mode))

	if mode == SecurityImplicitTLS {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, t.fail(ctx, err, KindConnect)
		}
		conn = tlsConn
	}

	c, err := smtp.NewClient(conn, cfg.Server)
	if err != nil {
		return nil, t.fail(ctx, err, KindConnect)
	}

	if mode == SecuritySTARTTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return nil, &SendError{Kind: KindProtocol, Err: fmt.Errorf("%s does not support STARTTLS", cfg.Server)}
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			return nil, t.fail(ctx, err, KindProtocol)
		}
	}

	ok, mechs := c.Extension("AUTH")
	if !ok {
		if mode != SecurityPlain {
			return nil, &SendError{Kind: KindProtocol, Err: fmt.Errorf("%s does not advertise AUTH", cfg.Server)}
		}
		// 明文端口且服务端不要求认证
		return c, nil
	}
	if err := c.Auth(authFor(cfg, mechs)); err != nil {
		serr := t.fail(ctx, err, KindAuth)
		if KindOf(serr) == KindProtocol {
			serr = &SendError{Kind: KindAuth, Err: err}
		}
		return nil, serr
	}
	return c, nil
}

// fail 在 ctx 已结束时统一按超时处理，否则按错误内容分类
func (t *SMTPTransport) fail(ctx context.Context, err error, replyKind SendErrorKind) error {
	if ctx.Err() != nil {
		return &SendError{Kind: KindTimeout, Err: errors.Join(ctx.Err(), err)}
	}
	return classify(err, replyKind)
}

func (t *SMTPTransport) tlsConfig(server string) *tls.Config {
	if t.TLSConfig != nil {
		return t.TLSConfig
	}
	return &tls.Config{ServerName: server}
}
